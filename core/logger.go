package core

// Logger is the logging service of the app.
// args may hold an error, a map[string]interface{} of extra data and at most one Person.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the learner a log entry is about.
type Person struct {
	ID       string
	Username string
	Email    string
}
