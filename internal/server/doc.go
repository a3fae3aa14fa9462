// Package server accepts TCP connections and hands each one to a worker pool
// as a single job.
//
// The accept loop runs on the caller's goroutine and never waits for a
// response to be written: every connection becomes one fire-and-forget job
// that reads the request, writes the reply, and closes the connection.
//
// # Basic Usage
//
//	pool, _ := worker.New(4)
//	defer pool.Close()
//
//	srv, err := server.New(server.DefaultConfig(), pool)
//	if err != nil {
//	    return err
//	}
//	return srv.ListenAndServe(ctx)
//
// # Limits
//
// MaxConnections stops the loop after that many accepted connections.
// MaxOpenConns caps connections that are open at the same time. AcceptRate
// throttles how fast new connections are accepted.
package server
