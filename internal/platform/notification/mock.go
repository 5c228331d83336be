package notification

import (
	"context"
	"sync"
)

type SentSMS struct {
	To   string
	Body string
}

// MockSMSSender records messages instead of sending them. Set Err to make
// every send fail.
type MockSMSSender struct {
	mu   sync.Mutex
	Sent []SentSMS
	Err  error
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentSMS{To: NormalizePhone(to), Body: body})
	return nil
}
