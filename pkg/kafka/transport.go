package kafka

import (
	"crypto/tls"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/oagudo/courier/pkg/config"
)

const dialTimeout = 10 * time.Second

func saslMechanism(sec config.SecurityOptions) sasl.Mechanism {
	if !sec.Enabled() {
		return nil
	}
	return plain.Mechanism{
		Username: sec.Username,
		Password: sec.Password,
	}
}

func tlsConfig(sec config.SecurityOptions) *tls.Config {
	if sec.DisableTLS {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: sec.InsecureSkipVerify, // #nosec G402 -- opt-in for brokers with private certificates
	}
}

// NewTransport builds the producer transport with SASL/PLAIN and TLS from sec.
func NewTransport(clientID string, sec config.SecurityOptions) *kafka.Transport {
	return &kafka.Transport{
		ClientID:    clientID,
		DialTimeout: dialTimeout,
		TLS:         tlsConfig(sec),
		SASL:        saslMechanism(sec),
	}
}

// NewDialer builds the consumer dialer with SASL/PLAIN and TLS from sec.
func NewDialer(clientID string, sec config.SecurityOptions) *kafka.Dialer {
	return &kafka.Dialer{
		ClientID:      clientID,
		Timeout:       dialTimeout,
		DualStack:     true,
		TLS:           tlsConfig(sec),
		SASLMechanism: saslMechanism(sec),
	}
}
