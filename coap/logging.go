package coap

import (
	"github.com/sirupsen/logrus"

	"github.com/lobaro/coap-engine/coapmsg"
)

// discardLogger is used whenever a Client is constructed without an
// explicit logger, so the engine never has to nil-check its sink.
var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}()

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// exchangeLog returns a field-tagged entry for one exchange, following
// the teacher's transport_uart.go logMsg helper.
func exchangeLog(log *logrus.Logger, peer string, req *coapmsg.Message) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"peer":      peer,
		"messageId": req.MessageID,
		"token":     req.Token,
	})
}
