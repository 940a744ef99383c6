package zipvault

import "log"

// Observer receives typed parse events as the archive is located and
// walked, so a caller that wants logging or metrics can inject it
// instead of the decoder itself knowing how to log. The default,
// NoopObserver, does nothing; a nil Observer is not accepted.
type Observer interface {
	OnEndRecordFound(offset int64)
	OnZip64RecordFound(offset int64)
	OnCentralHeader(name string, offset int64)
	OnLocalHeaderCorrelated(name string, payloadOffset int64)
}

type noopObserver struct{}

func (noopObserver) OnEndRecordFound(int64)             {}
func (noopObserver) OnZip64RecordFound(int64)           {}
func (noopObserver) OnCentralHeader(string, int64)      {}
func (noopObserver) OnLocalHeaderCorrelated(string, int64) {}

// NoopObserver is the default Observer: it discards every event.
var NoopObserver Observer = noopObserver{}

// LoggingObserver prints each event through a *log.Logger. A nil Logger
// falls back to the standard library's default logger.
type LoggingObserver struct {
	Logger *log.Logger
}

func (o LoggingObserver) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

func (o LoggingObserver) OnEndRecordFound(offset int64) {
	o.logger().Printf("zipvault: end record at 0x%x", offset)
}

func (o LoggingObserver) OnZip64RecordFound(offset int64) {
	o.logger().Printf("zipvault: zip64 end record at 0x%x", offset)
}

func (o LoggingObserver) OnCentralHeader(name string, offset int64) {
	o.logger().Printf("zipvault: central header %q at 0x%x", name, offset)
}

func (o LoggingObserver) OnLocalHeaderCorrelated(name string, payloadOffset int64) {
	o.logger().Printf("zipvault: local header for %q correlated, payload at 0x%x", name, payloadOffset)
}
