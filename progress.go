package ftpc

// ProgressFunc reports the progress of a transfer: verb is RETR or STOR,
// path the remote path as sent to the server, and transferred the total
// number of bytes moved so far.
type ProgressFunc func(verb, path string, transferred int64)

// WithProgress calls fn after every read or write on a data stream that
// moved data. fn runs on the goroutine doing the transfer and should
// return quickly.
//
// Example:
//
//	client, _ := ftpc.New("ftp.example.com:21",
//	    ftpc.WithProgress(func(verb, path string, n int64) {
//	        fmt.Printf("\r%s %s: %d bytes", verb, path, n)
//	    }),
//	)
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) error {
		c.progress = fn
		return nil
	}
}

// count adds n bytes to the stream total and reports it.
func (s *DataStream) count(n int) {
	if n <= 0 {
		return
	}
	s.n += int64(n)
	if s.c.progress != nil {
		s.c.progress(s.cmd.Verb, s.path(), s.n)
	}
}

// path returns the remote path of the transfer.
func (s *DataStream) path() string {
	if len(s.cmd.Args) == 0 {
		return ""
	}
	return s.cmd.Args[0]
}
