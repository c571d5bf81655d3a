package sdk

import (
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// CallbackResult is delivered exactly once per expected authorization.
type CallbackResult struct {
	Code string
	Err  error
}

// CallbackServer receives OAuth redirects and hands the code to whichever
// authorization is waiting on the matching state.
type CallbackServer struct {
	log *zap.Logger

	mu      sync.Mutex
	pending map[string]chan CallbackResult
}

func NewCallbackServer(log *zap.Logger) *CallbackServer {
	return &CallbackServer{
		log:     log,
		pending: map[string]chan CallbackResult{},
	}
}

// Expect registers state and returns the channel its result arrives on. The
// returned func must be called once the caller stops waiting.
func (c *CallbackServer) Expect(state string) (<-chan CallbackResult, func()) {
	ch := make(chan CallbackResult, 1)

	c.mu.Lock()
	c.pending[state] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.pending, state)
		c.mu.Unlock()
	}
}

func (c *CallbackServer) deliver(state string, res CallbackResult) bool {
	c.mu.Lock()
	ch, ok := c.pending[state]
	delete(c.pending, state)
	c.mu.Unlock()

	if !ok {
		return false
	}
	ch <- res
	return true
}

func (c *CallbackServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	state := values.Get("state")
	if state == "" {
		c.log.Error("no state")
		http.Error(w, "missing state", http.StatusBadRequest)
		return
	}

	res := CallbackResult{Code: values.Get("code")}
	if e := values.Get("error"); e != "" {
		c.log.Warn("discord authorization failed", zap.String("error", e))
		res = CallbackResult{Err: fmt.Errorf("%w: %s", ErrAuthorizeRejected, e)}
	} else if res.Code == "" {
		c.log.Error("no access code")
		res = CallbackResult{Err: fmt.Errorf("%w: no code returned", ErrAuthorizeRejected)}
	}

	if !c.deliver(state, res) {
		c.log.Warn("callback for unknown state", zap.String("state", state))
		http.Error(w, "unknown or expired authorization", http.StatusBadRequest)
		return
	}

	if res.Err != nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Authorization was not completed, you can close this window."))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("You can return to discord now :)"))
}
