package logging

func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (l nopLogger) WithField(string, interface{}) Logger { return l }
func (l nopLogger) WithFields(Fields) Logger             { return l }

func (l nopLogger) Debug(...interface{})          {}
func (l nopLogger) Info(...interface{})           {}
func (l nopLogger) Warning(error, ...interface{}) {}
func (l nopLogger) Error(error, ...interface{})   {}
