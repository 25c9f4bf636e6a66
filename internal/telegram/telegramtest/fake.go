// Package telegramtest provides a scriptable in-memory telegram.Dialer for tests.
package telegramtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tg-gateway/backend/internal/telegram"
)

// ErrDisconnected ends Listen when the fake drops its connections.
var ErrDisconnected = errors.New("telegramtest: disconnected")

// Fake is one scripted account. Set fields before handing it out; nil hooks fall back to the defaults
// documented on each field. All exported methods are safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	Authorized bool
	Me         telegram.User
	// Code is the one-time code SignIn accepts. Password, when set, is required after it.
	Code     string
	Password string
	// Users are resolvable by lower-cased username, Contacts by E.164 phone.
	// Importable numbers become contacts when imported.
	Users      map[string]telegram.User
	Contacts   map[string]telegram.User
	Importable map[string]telegram.User
	// ResolveFloodWait makes every resolve call report a flood wait.
	ResolveFloodWait time.Duration

	DialErr     error
	LogOutErr   error
	MarkReadErr error

	SendCodeFunc    func(phone string) (telegram.SendCodeResult, error)
	ResendCodeFunc  func(phone, hash string) (telegram.SendCodeResult, error)
	SignInFunc      func(phone, code, hash string) (telegram.SignInResult, error)
	SendMessageFunc func(peer telegram.Peer, text string) (telegram.SentMessage, error)

	calls     []string
	dialed    [][]byte
	conns     []*Conn
	listeners map[*Conn]func(telegram.IncomingMessage)
	sent      []Sent
	reads     []Read
	seq       int
}

// Sent is a recorded SendMessage call.
type Sent struct {
	Peer telegram.Peer
	Text string
	ID   int
}

// Read is a recorded MarkRead call.
type Read struct {
	Peer  telegram.Peer
	MaxID int
}

// New returns a Fake with empty directories.
func New() *Fake {
	return &Fake{
		Users:      make(map[string]telegram.User),
		Contacts:   make(map[string]telegram.User),
		Importable: make(map[string]telegram.User),
		listeners:  make(map[*Conn]func(telegram.IncomingMessage)),
	}
}

// Dial returns a new Conn over the shared account state.
func (f *Fake) Dial(ctx context.Context, session []byte) (telegram.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "Dial")
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.dialed = append(f.dialed, append([]byte(nil), session...))
	if len(session) == 0 {
		f.seq++
		session = []byte(fmt.Sprintf("fake-session-%d", f.seq))
	}
	c := &Conn{fake: f, session: append([]byte(nil), session...), done: make(chan struct{})}
	f.conns = append(f.conns, c)
	return c, nil
}

// Calls returns the method names invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times name was invoked.
func (f *Fake) CallCount(name string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

// Dialed returns the session each Dial was given.
func (f *Fake) Dialed() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.dialed...)
}

// Conns returns every Conn dialed so far.
func (f *Fake) Conns() []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Conn(nil), f.conns...)
}

// OpenConns returns how many dialed Conns have not been closed.
func (f *Fake) OpenConns() int {
	n := 0
	for _, c := range f.Conns() {
		if !c.Closed() {
			n++
		}
	}
	return n
}

// Listening returns how many Conns are inside Listen.
func (f *Fake) Listening() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Push delivers msg to every listening Conn.
func (f *Fake) Push(msg telegram.IncomingMessage) {
	f.mu.Lock()
	handlers := make([]func(telegram.IncomingMessage), 0, len(f.listeners))
	for _, h := range f.listeners {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

// Drop ends every Listen with ErrDisconnected, as a network failure would.
func (f *Fake) Drop() {
	for _, c := range f.Conns() {
		c.drop(ErrDisconnected)
	}
}

// SentMessages returns the recorded SendMessage calls.
func (f *Fake) SentMessages() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Reads returns the recorded MarkRead calls.
func (f *Fake) Reads() []Read {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Read(nil), f.reads...)
}

// IsAuthorized reads the account's authorization flag.
func (f *Fake) IsAuthorized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Authorized
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *Fake) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

// Conn is one dialed connection of a Fake.
type Conn struct {
	fake    *Fake
	session []byte

	mu      sync.Mutex
	closed  bool
	dropErr error
	done    chan struct{}
}

var _ telegram.Conn = (*Conn)(nil)

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) drop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropErr == nil && !c.closed {
		c.dropErr = err
		close(c.done)
	}
}

func (c *Conn) Authorized(context.Context) (bool, error) {
	c.fake.record("Authorized")
	return c.fake.IsAuthorized(), nil
}

// SendCode defaults to AlreadyAuthorized for a signed-in account, else a fresh hash delivered in-app with a 60 s timeout.
func (c *Conn) SendCode(_ context.Context, phone string) (telegram.SendCodeResult, error) {
	c.fake.record("SendCode")
	if fn := c.fake.SendCodeFunc; fn != nil {
		return fn(phone)
	}
	if c.fake.IsAuthorized() {
		return telegram.SendCodeResult{Outcome: telegram.SendCodeAlreadyAuthorized}, nil
	}
	return c.sentCode(), nil
}

// ResendCode defaults to a fresh hash.
func (c *Conn) ResendCode(_ context.Context, phone, hash string) (telegram.SendCodeResult, error) {
	c.fake.record("ResendCode")
	if fn := c.fake.ResendCodeFunc; fn != nil {
		return fn(phone, hash)
	}
	return c.sentCode(), nil
}

func (c *Conn) sentCode() telegram.SendCodeResult {
	return telegram.SendCodeResult{
		Outcome:        telegram.SendCodeSent,
		PhoneCodeHash:  fmt.Sprintf("hash-%d", c.fake.nextSeq()),
		Delivery:       telegram.DeliveryApp,
		TimeoutSeconds: 60,
	}
}

// SignIn defaults to comparing against Fake.Code, then asking for Fake.Password when one is set.
func (c *Conn) SignIn(_ context.Context, phone, code, hash string) (telegram.SignInResult, error) {
	c.fake.record("SignIn")
	if fn := c.fake.SignInFunc; fn != nil {
		return fn(phone, code, hash)
	}
	f := c.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if code != f.Code {
		return telegram.SignInResult{Outcome: telegram.SignInCodeInvalid}, nil
	}
	if f.Password != "" {
		return telegram.SignInResult{Outcome: telegram.SignInPasswordNeeded}, nil
	}
	f.Authorized = true
	return telegram.SignInResult{Outcome: telegram.SignInOK}, nil
}

func (c *Conn) CheckPassword(_ context.Context, password string) (telegram.SignInResult, error) {
	c.fake.record("CheckPassword")
	f := c.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if password != f.Password {
		return telegram.SignInResult{Outcome: telegram.SignInPasswordInvalid}, nil
	}
	f.Authorized = true
	return telegram.SignInResult{Outcome: telegram.SignInOK}, nil
}

func (c *Conn) LogOut(context.Context) error {
	c.fake.record("LogOut")
	f := c.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Authorized = false
	return f.LogOutErr
}

func (c *Conn) Self(context.Context) (telegram.User, error) {
	c.fake.record("Self")
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	return c.fake.Me, nil
}

func (c *Conn) floodWait() (telegram.ResolveResult, bool) {
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	if c.fake.ResolveFloodWait > 0 {
		return telegram.ResolveResult{Outcome: telegram.ResolveFloodWait, RetryAfter: c.fake.ResolveFloodWait}, true
	}
	return telegram.ResolveResult{}, false
}

func (c *Conn) ResolveSelf(ctx context.Context) (telegram.ResolveResult, error) {
	c.fake.record("ResolveSelf")
	if res, ok := c.floodWait(); ok {
		return res, nil
	}
	me, _ := c.Self(ctx)
	p := telegram.UserPeer(me)
	p.Kind = telegram.PeerSelf
	return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: p}, nil
}

// ResolveUsername reports ResolveInvalid for handles with characters outside [A-Za-z0-9_].
func (c *Conn) ResolveUsername(_ context.Context, username string) (telegram.ResolveResult, error) {
	c.fake.record("ResolveUsername")
	if res, ok := c.floodWait(); ok {
		return res, nil
	}
	for _, r := range username {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return telegram.ResolveResult{Outcome: telegram.ResolveInvalid, Reason: "USERNAME_INVALID"}, nil
		}
	}
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	u, ok := c.fake.Users[strings.ToLower(username)]
	if !ok {
		return telegram.ResolveResult{Outcome: telegram.ResolveNotFound}, nil
	}
	return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: telegram.UserPeer(u)}, nil
}

// ResolveID finds known users and contacts by id and reports anything else as PEER_ID_INVALID.
func (c *Conn) ResolveID(_ context.Context, id int64) (telegram.ResolveResult, error) {
	c.fake.record("ResolveID")
	if res, ok := c.floodWait(); ok {
		return res, nil
	}
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	for _, dir := range []map[string]telegram.User{c.fake.Users, c.fake.Contacts} {
		for _, u := range dir {
			if u.ID == id {
				return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: telegram.UserPeer(u)}, nil
			}
		}
	}
	return telegram.ResolveResult{Outcome: telegram.ResolveInvalid, Reason: "PEER_ID_INVALID"}, nil
}

func (c *Conn) ResolvePhone(_ context.Context, phone string) (telegram.ResolveResult, error) {
	c.fake.record("ResolvePhone")
	if res, ok := c.floodWait(); ok {
		return res, nil
	}
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	u, ok := c.fake.Contacts[phone]
	if !ok {
		return telegram.ResolveResult{Outcome: telegram.ResolveNotFound}, nil
	}
	return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: telegram.UserPeer(u)}, nil
}

func (c *Conn) ImportContact(_ context.Context, _ int64, phone string) (telegram.ResolveResult, error) {
	c.fake.record("ImportContact")
	if res, ok := c.floodWait(); ok {
		return res, nil
	}
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	u, ok := c.fake.Importable[phone]
	if !ok {
		return telegram.ResolveResult{Outcome: telegram.ResolveNotFound}, nil
	}
	c.fake.Contacts[phone] = u
	return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: telegram.UserPeer(u)}, nil
}

// SendMessage defaults to recording the message with a sequential id.
func (c *Conn) SendMessage(_ context.Context, peer telegram.Peer, text string) (telegram.SentMessage, error) {
	c.fake.record("SendMessage")
	if fn := c.fake.SendMessageFunc; fn != nil {
		return fn(peer, text)
	}
	f := c.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.sent = append(f.sent, Sent{Peer: peer, Text: text, ID: f.seq})
	return telegram.SentMessage{ID: f.seq, Date: time.Unix(1700000000, 0).UTC()}, nil
}

func (c *Conn) MarkRead(_ context.Context, peer telegram.Peer, maxID int) error {
	c.fake.record("MarkRead")
	f := c.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MarkReadErr != nil {
		return f.MarkReadErr
	}
	f.reads = append(f.reads, Read{Peer: peer, MaxID: maxID})
	return nil
}

// Session returns the session the Conn was dialed with, or the fresh one it was assigned.
func (c *Conn) Session(context.Context) ([]byte, error) {
	return append([]byte(nil), c.session...), nil
}

func (c *Conn) Listen(ctx context.Context, handler func(telegram.IncomingMessage)) error {
	c.fake.record("Listen")
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("telegramtest: closed")
	}
	c.mu.Unlock()

	c.fake.mu.Lock()
	c.fake.listeners[c] = handler
	c.fake.mu.Unlock()
	defer func() {
		c.fake.mu.Lock()
		delete(c.fake.listeners, c)
		c.fake.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.dropErr
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.dropErr == nil {
		close(c.done)
	}
	return nil
}
