package iocli

//go:generate moq -out io_mock.go . IO

// IO is the console the client commands talk through
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadSecret(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
