package notifier

import (
	"github.com/ValerySidorin/sopsync/pkg/notifier/nats"
)

// Encode renders the JSON body shared by every backend.
func Encode(subject string, payload interface{}) ([]byte, error) {
	return nats.Encode(subject, payload)
}
