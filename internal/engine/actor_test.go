package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinyex.com/internal/matching"
)

type memJournal struct {
	records [][]byte
	flushes int
	failOn  int // Append call that fails, 0 never
	closed  bool
}

func (j *memJournal) Append(p []byte) error {
	if j.failOn > 0 && len(j.records)+1 == j.failOn {
		return errors.New("disk full")
	}
	j.records = append(j.records, append([]byte(nil), p...))
	return nil
}

func (j *memJournal) Flush() error { j.flushes++; return nil }
func (j *memJournal) Close() error { j.closed = true; return nil }

func startActor(t *testing.T, a *SymbolActor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-a.Done()
	})
}

func limitCmd(id uint64, side matching.Side, price float64, qty int64) Command {
	return Command{Type: CmdSubmitLimit, OrderID: id, Owner: "u", Side: side, Price: price, Qty: qty}
}

func TestActorJournalsSubmitsOnly(t *testing.T) {
	j := &memJournal{}
	a := NewSymbolActor("AAPL", nil, nil, ActorConfig{}, j, nil, nil)
	startActor(t, a)
	ctx := context.Background()

	_, err := a.Do(ctx, limitCmd(1, matching.Buy, 10, 1))
	require.NoError(t, err)
	_, err = a.Do(ctx, Command{Type: CmdQuote})
	require.NoError(t, err)
	_, err = a.Do(ctx, limitCmd(2, matching.Sell, 10, 1))
	require.NoError(t, err)

	require.Len(t, j.records, 2)
	seq, cmd, err := JSONCmdCodec{}.Decode(j.records[1])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, uint64(2), cmd.OrderID)
	assert.Equal(t, matching.Sell, cmd.Side)
	assert.Equal(t, uint64(2), a.Seq())
}

func TestActorStopsOnJournalFailure(t *testing.T) {
	j := &memJournal{failOn: 2}
	settle := &countingSettlement{}
	a := NewSymbolActor("AAPL", settle, nil, ActorConfig{}, j, nil, nil)
	startActor(t, a)
	ctx := context.Background()

	_, err := a.Do(ctx, limitCmd(1, matching.Buy, 10, 1))
	require.NoError(t, err)

	_, err = a.Do(ctx, limitCmd(2, matching.Sell, 10, 1))
	require.ErrorIs(t, err, ErrJournal)
	assert.Zero(t, settle.fills, "unjournaled command must not be applied")

	<-a.Done()
	assert.True(t, j.closed)
	_, err = a.Do(ctx, Command{Type: CmdQuote})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestActorRejectsUnencodableCommand(t *testing.T) {
	j := &memJournal{}
	a := NewSymbolActor("AAPL", nil, nil, ActorConfig{}, j, nil, nil)
	startActor(t, a)
	ctx := context.Background()

	_, err := a.Do(ctx, limitCmd(1, matching.Buy, math.NaN(), 1))
	require.ErrorIs(t, err, ErrBadCommand)
	assert.Empty(t, j.records)
	assert.Zero(t, a.Seq())

	rep, err := a.Do(ctx, limitCmd(2, matching.Buy, 10, 1))
	require.NoError(t, err)
	require.NotNil(t, rep.Order)
	require.Len(t, j.records, 1)
	seq, _, err := JSONCmdCodec{}.Decode(j.records[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestActorMailboxFull(t *testing.T) {
	a := NewSymbolActor("AAPL", nil, nil, ActorConfig{MailboxSize: 1}, nil, nil, nil)

	// not running: the first request sits in the mailbox
	require.NoError(t, a.tryEnqueue(request{cmd: Command{Type: CmdQuote}, resp: make(chan Reply, 1)}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.Do(ctx, Command{Type: CmdQuote})
	assert.ErrorIs(t, err, ErrEngineBusy)
	assert.Equal(t, uint64(1), a.MailboxFull())
}

func TestActorCallerGivesUp(t *testing.T) {
	a := NewSymbolActor("AAPL", nil, nil, ActorConfig{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// queued before the actor runs, so the caller leaves first
	_, err := a.Do(ctx, limitCmd(1, matching.Buy, 10, 1))
	assert.ErrorIs(t, err, context.Canceled)

	startActor(t, a)
	q, err := a.Do(context.Background(), Command{Type: CmdQuote})
	require.NoError(t, err)
	require.NotNil(t, q.Quote.Bid, "abandoned command still applied")
	assert.Equal(t, uint64(1), q.Quote.Bid.ID)
}

func TestActorRejectsBadOrder(t *testing.T) {
	a := NewSymbolActor("AAPL", nil, nil, ActorConfig{}, nil, nil, nil)
	startActor(t, a)

	_, err := a.Do(context.Background(), limitCmd(1, matching.Buy, -1, 1))
	assert.ErrorIs(t, err, ErrBadCommand)
	_, err = a.Do(context.Background(), Command{Type: CmdType(99)})
	assert.ErrorIs(t, err, ErrBadCommand)
}

func TestActorTradeTimeFromCommand(t *testing.T) {
	a := NewSymbolActor("AAPL", nil, nil, ActorConfig{}, nil, nil, nil)
	startActor(t, a)
	ctx := context.Background()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := a.Do(ctx, limitCmd(1, matching.Buy, 10, 1))
	require.NoError(t, err)
	cmd := limitCmd(2, matching.Sell, 10, 1)
	cmd.ClientTs = ts.UnixNano()
	rep, err := a.Do(ctx, cmd)
	require.NoError(t, err)
	require.Len(t, rep.Trades, 1)
	assert.True(t, rep.Trades[0].Time.Equal(ts))
}

type countingSettlement struct{ fills int }

func (s *countingSettlement) OnBuyFill(string, string, int64, float64)  { s.fills++ }
func (s *countingSettlement) OnSellFill(string, string, int64, float64) { s.fills++ }
