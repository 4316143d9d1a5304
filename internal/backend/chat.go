package backend

// ChatSession is a lightweight streaming chat. The router drives its tool
// loop; interrupting it unbinds the chat handle, so later input reports
// that no session is active.
type ChatSession struct {
	*conversation
}

var _ Session = (*ChatSession)(nil)

func (s *ChatSession) IsAgent() bool { return false }

func (s *ChatSession) Interrupt() {
	sessLog.Debug("chat session %s interrupted", s.id[:8])
	s.unbind()
}

func (s *ChatSession) Status() string { return "" }
