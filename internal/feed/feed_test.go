package feed

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"eventRelay/internal/decode"
	"eventRelay/internal/model"
)

type fakeSource struct {
	latest   uint64
	logs     []types.Log
	ranges   []BlockRange
	failOnce map[uint64]bool
}

func (s *fakeSource) GetChainID(context.Context) (*big.Int, error) {
	return big.NewInt(10143), nil
}

func (s *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	return s.latest, nil
}

func (s *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1700000000 + number, nil
}

func (s *fakeSource) FilterLogs(_ context.Context, fromBlock, toBlock uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	s.ranges = append(s.ranges, BlockRange{From: fromBlock, To: toBlock})
	if s.failOnce[fromBlock] {
		delete(s.failOnce, fromBlock)
		return nil, errors.New("upstream timeout")
	}
	var out []types.Log
	for _, log := range s.logs {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

type collectingSink struct {
	mu     sync.Mutex
	events []model.BlockchainEvent
}

func (s *collectingSink) OnEvent(_ context.Context, event model.BlockchainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func transferLog(t *testing.T, block uint64, index uint, value int64) types.Log {
	t.Helper()
	events, err := decode.EventsABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	from := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	to := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	return types.Log{
		Address: common.HexToAddress("0x760AfE86e5de5fa0Ee542fc7B7B713e1c5425701"),
		Topics: []common.Hash{
			events.Events["Transfer"].ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        common.LeftPadBytes(big.NewInt(value).Bytes(), 32),
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
		Index:       index,
	}
}

func TestChainFeedPollDecodesAndCheckpoints(t *testing.T) {
	decoder, err := decode.NewDecoder(nil, nil)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	unknown := types.Log{
		Address:     common.HexToAddress("0x00000000000000000000000000000000000000c3"),
		Topics:      []common.Hash{common.HexToHash("0x01")},
		BlockNumber: 11,
	}
	first := transferLog(t, 10, 0, 7)
	source := &fakeSource{
		latest: 12,
		logs:   []types.Log{first, first, unknown, transferLog(t, 12, 3, 9)},
	}

	path := filepath.Join(t.TempDir(), "checkpoint.json")
	feed := NewChainFeed(ChainConfig{BatchSize: 2, CheckpointPath: path}, source, decoder, nil, nil)
	sink := &collectingSink{}

	next, err := feed.Poll(context.Background(), 10143, 10, sink)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if next != 13 {
		t.Fatalf("next block mismatch: %d", next)
	}
	want := []BlockRange{{From: 10, To: 11}, {From: 12, To: 12}}
	if len(source.ranges) != len(want) || source.ranges[0] != want[0] || source.ranges[1] != want[1] {
		t.Fatalf("ranges mismatch: %+v", source.ranges)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	got := sink.events[0]
	if got.EventType != "Transfer" || got.ChainID != 10143 || got.Timestamp != 1700000010 {
		t.Fatalf("event header mismatch: %+v", got)
	}
	if got.Payload.Get("value").Text() != "7" {
		t.Fatalf("value mismatch: %s", got.Payload.Get("value"))
	}
	if got.ContractAddress != strings.ToLower("0x760AfE86e5de5fa0Ee542fc7B7B713e1c5425701") {
		t.Fatalf("contract mismatch: %s", got.ContractAddress)
	}

	cp, ok, err := NewCheckpointStore(path).Load(10143)
	if err != nil || !ok {
		t.Fatalf("load checkpoint: %v %v", ok, err)
	}
	if cp.LastProcessedBlock != 12 {
		t.Fatalf("checkpoint mismatch: %+v", cp)
	}

	next, err = feed.Poll(context.Background(), 10143, 13, sink)
	if err != nil || next != 13 {
		t.Fatalf("idle poll mismatch: %d %v", next, err)
	}
}

func TestChainFeedResumesAfterFailedBatch(t *testing.T) {
	decoder, err := decode.NewDecoder(nil, nil)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	source := &fakeSource{
		latest:   15,
		logs:     []types.Log{transferLog(t, 10, 0, 1), transferLog(t, 15, 0, 2)},
		failOnce: map[uint64]bool{14: true},
	}
	feed := NewChainFeed(ChainConfig{FromBlock: 10, BatchSize: 2, PollInterval: time.Millisecond}, source, decoder, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	delivered := make(map[uint64]int)
	sink := SinkFunc(func(_ context.Context, event model.BlockchainEvent) error {
		delivered[event.BlockNumber]++
		if event.BlockNumber == 15 {
			cancel()
		}
		return nil
	})

	if err := feed.Run(ctx, sink); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if delivered[10] != 1 || delivered[15] != 1 {
		t.Fatalf("delivery counts mismatch: %v", delivered)
	}
	want := []BlockRange{{From: 10, To: 11}, {From: 12, To: 13}, {From: 14, To: 15}, {From: 14, To: 15}}
	if len(source.ranges) < len(want) {
		t.Fatalf("ranges mismatch: %+v", source.ranges)
	}
	for i := range want {
		if source.ranges[i] != want[i] {
			t.Fatalf("range %d mismatch: %+v", i, source.ranges)
		}
	}
}

func TestChainFeedResumesFromCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := NewCheckpointStore(path).Save(10143, 50); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	decoder, err := decode.NewDecoder(nil, nil)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	feed := NewChainFeed(ChainConfig{FromBlock: 10, BatchSize: 5, CheckpointPath: path}, &fakeSource{latest: 60}, decoder, nil, nil)

	from, err := feed.startBlock(context.Background(), 10143)
	if err != nil {
		t.Fatalf("start block: %v", err)
	}
	if from != 51 {
		t.Fatalf("expected resume at 51, got %d", from)
	}

	from, err = feed.startBlock(context.Background(), 1)
	if err != nil {
		t.Fatalf("start block: %v", err)
	}
	if from != 10 {
		t.Fatalf("checkpoint of another chain should be ignored, got %d", from)
	}
}

func TestCheckpointDisabled(t *testing.T) {
	store := NewCheckpointStore("")
	if store.Enabled() {
		t.Fatalf("empty path should disable checkpoints")
	}
	if err := store.Save(1, 5); err != nil {
		t.Fatalf("save on disabled store: %v", err)
	}
	if _, ok, err := store.Load(1); ok || err != nil {
		t.Fatalf("load on disabled store: %v %v", ok, err)
	}
}

func TestNATSFeedHandleMessage(t *testing.T) {
	feed := NewNATSFeed(NATSConfig{Subject: "events"}, nil, nil)
	sink := &collectingSink{}

	feed.handleMessage(context.Background(), sink, []byte(`{"chain_id":1,"contract_address":"0xabc","event_type":"Transfer","payload":{"value":"1000000000000000000"}}`))
	feed.handleMessage(context.Background(), sink, []byte(`not json`))
	feed.handleMessage(context.Background(), sink, []byte(`{"chain_id":1}`))

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	if sink.events[0].Payload.Get("value").Text() != "1000000000000000000" {
		t.Fatalf("payload mismatch: %+v", sink.events[0].Payload)
	}
}

func TestFileFeedReplaysInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	var lines []string
	for _, eventType := range []string{"Transfer", "Approval", "Swap"} {
		data, err := json.Marshal(model.BlockchainEvent{ChainID: 1, EventType: eventType, Payload: model.Payload{}})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		lines = append(lines, string(data), "")
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	sink := &collectingSink{}
	if err := NewFileFeed(path, nil, nil).Run(context.Background(), sink); err != nil {
		t.Fatalf("replay: %v", err)
	}
	var got []string
	for _, event := range sink.events {
		got = append(got, event.EventType)
	}
	if strings.Join(got, ",") != "Transfer,Approval,Swap" {
		t.Fatalf("order mismatch: %v", got)
	}
}

func TestFileFeedRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte("{\"event_type\":\"Transfer\"}\n{oops\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	sink := &collectingSink{}
	err := NewFileFeed(path, nil, nil).Run(context.Background(), sink)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 decode error, got %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected first line delivered, got %d", len(sink.events))
	}
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x760AfE86e5de5fa0Ee542fc7B7B713e1c5425701 ", ""})
	if err != nil || len(got) != 1 {
		t.Fatalf("parse addresses: %v %v", got, err)
	}
	if _, err := ParseAddresses([]string{"0x123"}); err == nil {
		t.Fatalf("expected invalid address error")
	}
}
