//go:build !unix

package shm

func mmap(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func munmap(data []byte) error {
	return nil
}
