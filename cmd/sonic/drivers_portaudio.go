//go:build portaudio

package main

import (
	_ "github.com/dudk/sonic/driver/portaudio"
)
