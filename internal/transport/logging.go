// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
)

// LoggingTransport implements the Transport interface by logging data at debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	logger.Infof("using logging transport")
	return &LoggingTransport{}
}

// Send logs the JSON form of data, or its Go form if it does not marshal.
func (lt *LoggingTransport) Send(data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Debugf("event (%T): %+v (marshal error: %v)", data, data, err)
		return nil
	}
	logger.Debugf("event: %s", jsonData)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
