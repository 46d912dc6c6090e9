/*
Package engine implements the module graph and its render loop.

Modules

A module is an opaque processing unit described by a Class: the number of
input, joint input and output streams and a set of callbacks. Modules never
own input memory, they are handed the output blocks of upstream modules.
Unconnected inputs read the shared zero block.

Jobs and transactions

The graph is owned by the render goroutine. Control goroutines mutate it by
adding jobs to a transaction and committing it:

    t := e.Open()
    t.Add(
        engine.Integrate(src),
        engine.Integrate(dst),
        engine.Connect(src, 0, dst, 0),
        engine.SetConsumer(dst, true),
    )
    tick := t.Commit()

Committed transactions are applied at the next block boundary, strictly in
commit order and jobs within a transaction in submission order. Free
callbacks of jobs and discarded modules are executed on the control side,
when Collect is called.

Render loop

Run executes the prepare, check and dispatch cycle until the context is
done. Poll functions registered with AddPoll decide when the next block is
rendered and provide timeout hints, so the loop never spins.
*/
package engine
