package core

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	LogChanMaxSize = 1000

	logCountKey  = "logCount"
	logKeyPrefix = "log-"
)

// Client is the read side of the journal, shaped like the log filtering
// part of an ethereum client so indexers can consume either.
type Client interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error)
}

var (
	_ Client  = (*Journal)(nil)
	_ Emitter = (*Journal)(nil)
)

var (
	// ErrSubscriptionOverflow ends a subscription whose reader fell more
	// than LogChanMaxSize logs behind.
	ErrSubscriptionOverflow = errors.New("log subscription overflow")

	// ErrAdministratorChanged is returned by Restore when the configured
	// administrator is not the one the session was created with.
	ErrAdministratorChanged = errors.New("administrator differs from the session creation log")
)

// Journal records every log a session emits, in order, and fans them out to
// subscribers. When backed by a storage the logs survive a restart.
type Journal struct {
	mu     sync.RWMutex
	logs   []types.Log
	db     storage.Storage
	logger logrus.FieldLogger

	feed  event.Feed
	scope event.SubscriptionScope

	// Emit only wakes the dispatcher, the fan-out runs on its goroutine.
	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewJournal loads the logs already stored in db. db may be nil for an
// in-memory journal.
func NewJournal(db storage.Storage, logger logrus.FieldLogger) (*Journal, error) {
	j := &Journal{
		db:     db,
		logger: logger,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if db == nil {
		go j.dispatch(0)
		return j, nil
	}

	count := uint64(0)
	if data := db.Get([]byte(logCountKey)); data != nil {
		count = binary.BigEndian.Uint64(data)
	}
	for seq := uint64(1); seq <= count; seq++ {
		data := db.Get(logKey(seq))
		if data == nil {
			return nil, fmt.Errorf("journal log %d is missing", seq)
		}
		var l types.Log
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("unmarshal journal log %d: %w", seq, err)
		}
		j.logs = append(j.logs, l)
	}
	logger.WithFields(logrus.Fields{"logs": count}).Info("Journal loaded")

	go j.dispatch(len(j.logs))
	return j, nil
}

func logKey(seq uint64) []byte {
	key := make([]byte, len(logKeyPrefix)+8)
	copy(key, logKeyPrefix)
	binary.BigEndian.PutUint64(key[len(logKeyPrefix):], seq)
	return key
}

// Emit sequences l and stores it, then hands it to the dispatcher. It never
// waits on subscribers.
func (j *Journal) Emit(l types.Log) {
	j.mu.Lock()
	seq := uint64(len(j.logs)) + 1
	l.BlockNumber = seq
	l.Index = uint(seq - 1)
	l.TxHash = crypto.Keccak256Hash(binary.BigEndian.AppendUint64(nil, seq), l.Data)
	j.logs = append(j.logs, l)

	if j.db != nil {
		data, err := json.Marshal(&l)
		if err != nil {
			j.logger.Errorf("marshal journal log %d: %s", seq, err)
		} else {
			batch := j.db.NewBatch()
			batch.Put(logKey(seq), data)
			batch.Put([]byte(logCountKey), binary.BigEndian.AppendUint64(nil, seq))
			batch.Commit()
		}
	}
	j.mu.Unlock()

	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// dispatch broadcasts the logs past sent in order until the journal closes.
func (j *Journal) dispatch(sent int) {
	defer close(j.done)

	for {
		select {
		case <-j.wake:
		case <-j.quit:
			return
		}

		for {
			j.mu.RLock()
			pending := j.logs[sent:]
			j.mu.RUnlock()
			if len(pending) == 0 {
				break
			}
			for _, l := range pending {
				j.feed.Send(l)
			}
			sent += len(pending)
		}
	}
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return len(j.logs)
}

func (j *Journal) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	return lo.Filter(j.logs, func(l types.Log, _ int) bool {
		return matchLog(&l, &q)
	}), nil
}

// SubscribeFilterLogs delivers logs emitted from now on that match q. Up to
// LogChanMaxSize logs are queued for a slow reader, past that the
// subscription ends with ErrSubscriptionOverflow.
func (j *Journal) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	logs := make(chan types.Log, LogChanMaxSize)
	sub := j.scope.Track(j.feed.Subscribe(logs))
	from := uint64(j.Len())

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()

		var pending []types.Log
		for {
			var (
				out  chan<- types.Log
				next types.Log
			)
			if len(pending) > 0 {
				out, next = ch, pending[0]
			}

			select {
			case l := <-logs:
				if l.BlockNumber <= from || !matchLog(&l, &q) {
					continue
				}
				if len(pending) == LogChanMaxSize {
					j.logger.WithFields(logrus.Fields{"block": l.BlockNumber}).Warn("Log subscriber too slow, dropped")
					return ErrSubscriptionOverflow
				}
				pending = append(pending, l)
			case out <- next:
				pending = pending[1:]
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}), nil
}

// Close stops the dispatcher, ends every subscription and closes the storage.
func (j *Journal) Close() error {
	select {
	case <-j.quit:
	default:
		close(j.quit)
	}
	<-j.done
	j.scope.Close()
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// matchLog follows the ethereum filter rules: a zero or nil block bound is
// open, an empty topic position matches anything.
func matchLog(l *types.Log, q *ethereum.FilterQuery) bool {
	if q.BlockHash != nil && *q.BlockHash != l.BlockHash {
		return false
	}
	if q.FromBlock != nil && q.FromBlock.Sign() > 0 && l.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && q.ToBlock.Sign() > 0 && l.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 && !lo.Contains(q.Addresses, l.Address) {
		return false
	}
	if len(q.Topics) > len(l.Topics) {
		return false
	}
	for i, sub := range q.Topics {
		if len(sub) > 0 && !lo.Contains(sub, l.Topics[i]) {
			return false
		}
	}
	return true
}

// Restore rebuilds the session deployed by deployer by replaying its logs
// from client through the session operations. Replayed operations are not
// emitted again. The first log must be the creation log, and its
// administrator must match the configured one. Without any log the session
// is created afresh.
func Restore(ctx context.Context, client Client, deployer common.Address, opts ...Option) (*Session, error) {
	s := newSession(deployer, opts...)

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{s.Address()},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch session logs: %w", err)
	}
	if len(logs) == 0 {
		s.created()
		return s, nil
	}

	ev, err := DecodeLog(&logs[0])
	if err != nil {
		return nil, fmt.Errorf("decode creation log: %w", err)
	}
	creation, ok := ev.(*OwnershipTransferred)
	if !ok {
		return nil, fmt.Errorf("first session log %d is %T, not the creation log", logs[0].BlockNumber, ev)
	}
	if creation.NewOwner != s.administrator {
		return nil, fmt.Errorf("%w: created with %s, configured %s", ErrAdministratorChanged, creation.NewOwner, s.administrator)
	}

	emitter := s.emitter
	s.emitter = nopEmitter{}
	defer func() {
		s.emitter = emitter
	}()

	for i := 1; i < len(logs); i++ {
		if err := s.replay(&logs[i]); err != nil {
			return nil, fmt.Errorf("replay log %d: %w", logs[i].BlockNumber, err)
		}
	}
	s.logger.WithFields(logrus.Fields{"logs": len(logs), "status": s.WorkflowStatus()}).Info("Session restored")

	return s, nil
}

func (s *Session) replay(l *types.Log) error {
	ev, err := DecodeLog(l)
	if err != nil {
		return err
	}

	admin := s.Owner()
	switch e := ev.(type) {
	case *VoterRegistered:
		return s.AddVoter(admin, e.Voter)
	case *ProposalRegistered:
		id, err := s.AddProposal(e.Proposer, e.Description)
		if err != nil {
			return err
		}
		if id != e.ProposalID {
			return fmt.Errorf("proposal registered at %d, log says %d", id, e.ProposalID)
		}
		return nil
	case *Voted:
		return s.SetVote(e.Voter, e.ProposalID)
	case *WorkflowStatusChange:
		switch e.PreviousStatus {
		case RegisteringVoters:
			return s.StartProposalsRegistering(admin)
		case ProposalsRegistrationStarted:
			return s.EndProposalsRegistering(admin)
		case ProposalsRegistrationEnded:
			return s.StartVotingSession(admin)
		case VotingSessionStarted:
			return s.EndVotingSession(admin)
		case VotingSessionEnded:
			_, err := s.TallyVotes(admin)
			return err
		}
		return fmt.Errorf("unexpected status change from %s", e.PreviousStatus)
	}
	return fmt.Errorf("unexpected event %T", ev)
}
