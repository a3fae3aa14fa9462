// Package jobqueue provides the unbounded multi-producer, multi-consumer
// queue that connects a worker pool to its workers.
//
// A Queue carries Messages. A Message is either a Job to run or a Terminate
// signal (a poison pill) that tells exactly one consumer to stop.
//
// # Basic Usage
//
//	q := jobqueue.New()
//	_ = q.Send(jobqueue.NewJob(func() { fmt.Println("hello") }))
//	_ = q.Send(jobqueue.Terminate())
//
//	for {
//	    msg, err := q.Receive()
//	    if err != nil || msg.IsTerminate() {
//	        return
//	    }
//	    msg.Job()()
//	}
//
// # Delivery
//
// Every message is delivered to exactly one consumer, in the order it was
// sent. Send never blocks on capacity. Receive blocks until a message is
// available; many consumers may wait at the same time, but claiming the next
// message is serialized under the queue's mutex.
//
// # Closing
//
// Close wakes every waiting consumer. Messages already queued are still
// delivered; once the queue is empty, Receive returns ErrClosed.
package jobqueue
