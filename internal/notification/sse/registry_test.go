package sse

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	id "civicdesk/pkg/domain"
)

// fakeChannel records frames and can be flipped to failing mid-test.
type fakeChannel struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (c *fakeChannel) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write: broken pipe")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeChannel) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

// received returns frames excluding the opening connected frame.
func (c *fakeChannel) received(event string) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Frame
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry()
}

func (s *RegistrySuite) TestAddConnection() {
	clientID := id.NewUserID()
	ch := &fakeChannel{}

	connID, guard := s.registry.AddConnection(clientID, id.RecipientClient, ch)
	s.False(connID.IsNil())
	s.NotNil(guard)
	s.Equal(1, s.registry.ConnectionCount(clientID, id.RecipientClient))

	connected := ch.received(EventConnected)
	s.Require().Len(connected, 1)
	s.EqualValues(1, connected[0].ID)
	s.Contains(string(connected[0].Data), connID.String())
}

func (s *RegistrySuite) TestRemoveConnectionIdempotent() {
	clientID := id.NewUserID()
	ch := &fakeChannel{}
	connID, guard := s.registry.AddConnection(clientID, id.RecipientClient, ch)

	s.registry.RemoveConnection(clientID, id.RecipientClient, connID, guard)
	s.Equal(0, s.registry.ConnectionCount(clientID, id.RecipientClient))

	// Second removal for the same logical connection must be a no-op, as
	// when a client close and a server abort race for the same teardown.
	s.NotPanics(func() {
		s.registry.RemoveConnection(clientID, id.RecipientClient, connID, guard)
	})
	s.Equal(0, s.registry.ConnectionCount(clientID, id.RecipientClient))
}

func (s *RegistrySuite) TestSendToRecipient() {
	clientID := id.NewUserID()
	otherID := id.NewUserID()
	ch1 := &fakeChannel{}
	ch2 := &fakeChannel{}
	other := &fakeChannel{}
	s.registry.AddConnection(clientID, id.RecipientClient, ch1)
	s.registry.AddConnection(clientID, id.RecipientClient, ch2)
	s.registry.AddConnection(otherID, id.RecipientClient, other)

	delivered := s.registry.SendToRecipient(clientID, EventNotification, map[string]string{"hello": "world"})

	s.Equal(2, delivered)
	s.Len(ch1.received(EventNotification), 1)
	s.Len(ch2.received(EventNotification), 1)
	s.Empty(other.received(EventNotification))
}

func (s *RegistrySuite) TestSendPrunesDeadChannelOnly() {
	clientID := id.NewUserID()
	alive := &fakeChannel{}
	dead := &fakeChannel{}
	s.registry.AddConnection(clientID, id.RecipientClient, alive)
	s.registry.AddConnection(clientID, id.RecipientClient, dead)
	dead.setFail(true)

	delivered := s.registry.SendToRecipient(clientID, EventNotification, "payload")

	s.Equal(1, delivered)
	s.Len(alive.received(EventNotification), 1)
	s.Equal(1, s.registry.ConnectionCount(clientID, id.RecipientClient))

	// The pruned channel stays gone on the next send.
	delivered = s.registry.SendToRecipient(clientID, EventNotification, "payload")
	s.Equal(1, delivered)
}

func (s *RegistrySuite) TestSendToAllAdmins() {
	admin1 := id.NewUserID()
	admin2 := id.NewUserID()
	clientID := id.NewUserID()
	adminCh1 := &fakeChannel{}
	adminCh2 := &fakeChannel{}
	clientCh := &fakeChannel{}
	s.registry.AddConnection(admin1, id.RecipientAdmin, adminCh1)
	s.registry.AddConnection(admin2, id.RecipientAdmin, adminCh2)
	s.registry.AddConnection(clientID, id.RecipientClient, clientCh)

	delivered := s.registry.SendToAllAdmins(EventNotification, "admin payload")

	s.Equal(2, delivered)
	s.Len(adminCh1.received(EventNotification), 1)
	s.Len(adminCh2.received(EventNotification), 1)
	s.Empty(clientCh.received(EventNotification))
}

func (s *RegistrySuite) TestBroadcastAll() {
	adminCh := &fakeChannel{}
	clientCh := &fakeChannel{}
	s.registry.AddConnection(id.NewUserID(), id.RecipientAdmin, adminCh)
	s.registry.AddConnection(id.NewUserID(), id.RecipientClient, clientCh)

	delivered := s.registry.BroadcastAll(EventNotification, "everyone")

	s.Equal(2, delivered)
	s.Len(adminCh.received(EventNotification), 1)
	s.Len(clientCh.received(EventNotification), 1)
}

func (s *RegistrySuite) TestHeartbeatPrunesDeadConnection() {
	clientID := id.NewUserID()
	ch := &fakeChannel{}
	connID, _ := s.registry.AddConnection(clientID, id.RecipientClient, ch)

	s.Require().NoError(s.registry.Heartbeat(clientID, id.RecipientClient, connID))
	s.Len(ch.received(EventHeartbeat), 1)

	ch.setFail(true)
	s.Error(s.registry.Heartbeat(clientID, id.RecipientClient, connID))
	s.Equal(0, s.registry.ConnectionCount(clientID, id.RecipientClient))

	// Heartbeat on an already-pruned connection is a quiet no-op.
	s.NoError(s.registry.Heartbeat(clientID, id.RecipientClient, connID))
}

func (s *RegistrySuite) TestFrameIDsMonotonicPerConnection() {
	clientID := id.NewUserID()
	ch := &fakeChannel{}
	s.registry.AddConnection(clientID, id.RecipientClient, ch)

	for i := 0; i < 3; i++ {
		s.registry.SendToRecipient(clientID, EventNotification, i)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i := 1; i < len(ch.frames); i++ {
		s.Equal(ch.frames[i-1].ID+1, ch.frames[i].ID)
	}
}

// Concurrent connect/send/remove across goroutines must not race or panic;
// run with -race.
func (s *RegistrySuite) TestConcurrentChurn() {
	const goroutines = 16
	clientID := id.NewUserID()

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := &fakeChannel{}
			connID, guard := s.registry.AddConnection(clientID, id.RecipientClient, ch)
			s.registry.SendToRecipient(clientID, EventNotification, "payload")
			s.registry.RemoveConnection(clientID, id.RecipientClient, connID, guard)
			s.registry.RemoveConnection(clientID, id.RecipientClient, connID, guard)
		}()
	}
	wg.Wait()

	s.Equal(0, s.registry.ConnectionCount(clientID, id.RecipientClient))
}
