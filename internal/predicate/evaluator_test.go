package predicate

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"eventRelay/internal/model"
)

func conditions(t *testing.T, raw string) model.ConditionMap {
	t.Helper()
	var out model.ConditionMap
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("conditions: %v", err)
	}
	return out
}

func payload(t *testing.T, raw string) model.Payload {
	t.Helper()
	var out model.Payload
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("payload: %v", err)
	}
	return out
}

func TestEvaluateEmptyMatches(t *testing.T) {
	if !Evaluate(nil, payload(t, `{"value": 1}`)) {
		t.Fatalf("nil conditions should match")
	}
	if !Evaluate(model.ConditionMap{}, nil) {
		t.Fatalf("empty conditions should match nil payload")
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name       string
		conditions string
		payload    string
		want       bool
	}{
		{"literal equal", `{"from": "0xabc"}`, `{"from": "0xabc"}`, true},
		{"literal differs", `{"from": "0xabc"}`, `{"from": "0xdef"}`, false},
		{"literal missing field", `{"from": "0xabc"}`, `{}`, false},
		{"no coercion string vs number", `{"value": "5"}`, `{"value": 5}`, false},
		{"number equal by value", `{"value": 5}`, `{"value": 5.0}`, true},
		{"gt true", `{"value": {"gt": 5}}`, `{"value": 6}`, true},
		{"gt equal is false", `{"value": {"gt": 5}}`, `{"value": 5}`, false},
		{"gte equal", `{"value": {"gte": 5}}`, `{"value": 5}`, true},
		{"lt", `{"value": {"lt": 5}}`, `{"value": 4}`, true},
		{"lte", `{"value": {"lte": 5}}`, `{"value": 6}`, false},
		{"big integer strings gt", `{"value": {"gt": "500000000000000000"}}`, `{"value": "1000000000000000000"}`, true},
		{"big integer strings lt", `{"value": {"lt": "500000000000000000"}}`, `{"value": "1000000000000000000"}`, false},
		{"integer string vs number", `{"value": {"gt": 1000}}`, `{"value": "99999999999999999999999"}`, true},
		{"decimal strings", `{"price": {"gt": "1.25"}}`, `{"price": "1.3"}`, true},
		{"lexicographic strings", `{"symbol": {"lt": "b"}}`, `{"symbol": "abc"}`, true},
		{"not comparable", `{"value": {"gt": 5}}`, `{"value": true}`, false},
		{"gt on missing field", `{"value": {"gt": 5}}`, `{}`, false},
		{"range and", `{"value": {"gt": 1, "lt": 10}}`, `{"value": 5}`, true},
		{"range and fails", `{"value": {"gt": 1, "lt": 10}}`, `{"value": 11}`, false},
		{"eq", `{"status": {"eq": "ok"}}`, `{"status": "ok"}`, true},
		{"ne", `{"status": {"ne": "ok"}}`, `{"status": "failed"}`, true},
		{"ne missing", `{"status": {"ne": "ok"}}`, `{}`, true},
		{"in", `{"to": {"in": ["0x1", "0x2"]}}`, `{"to": "0x2"}`, true},
		{"in miss", `{"to": {"in": ["0x1", "0x2"]}}`, `{"to": "0x3"}`, false},
		{"nin", `{"to": {"nin": ["0x1"]}}`, `{"to": "0x3"}`, true},
		{"nin hit", `{"to": {"nin": ["0x1"]}}`, `{"to": "0x1"}`, false},
		{"in not a list", `{"to": {"in": "0x1"}}`, `{"to": "0x1"}`, false},
		{"unknown operator", `{"value": {"between": [1, 2]}}`, `{"value": 1}`, false},
		{"empty operator object", `{"value": {}}`, `{"value": 1}`, false},
		{"multiple fields", `{"from": "0xa", "value": {"gt": 1}}`, `{"from": "0xa", "value": 2}`, true},
		{"multiple fields one fails", `{"from": "0xa", "value": {"gt": 1}}`, `{"from": "0xb", "value": 2}`, false},
		{"list literal", `{"path": ["a", "b"]}`, `{"path": ["a", "b"]}`, true},
		{"null literal", `{"memo": null}`, `{"memo": null}`, true},
		{"null literal missing", `{"memo": null}`, `{}`, false},
	}

	for _, tc := range cases {
		got := Evaluate(conditions(t, tc.conditions), payload(t, tc.payload))
		if got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestCheckReportsErrors(t *testing.T) {
	_, err := Check(conditions(t, `{"value": {"gt": 5}}`), payload(t, `{"value": "abc"}`))
	if !errors.Is(err, ErrNotComparable) {
		t.Fatalf("expected not comparable error, got %v", err)
	}

	_, err = Check(conditions(t, `{"value": {"oops": 5}}`), payload(t, `{"value": 1}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}

	matched, err := Check(conditions(t, `{"value": {"gt": 5}}`), payload(t, `{"value": 4}`))
	if matched || err != nil {
		t.Fatalf("plain non-match should not error: %v %v", matched, err)
	}
}

func TestEvaluateShortCircuitsInKeyOrder(t *testing.T) {
	// "a" fails first, so the malformed operator object on "b" is never reached.
	matched, err := Check(conditions(t, `{"a": 1, "b": {"bad": 1}}`), payload(t, `{"a": 2}`))
	if matched || err != nil {
		t.Fatalf("expected silent non-match, got %v %v", matched, err)
	}
}

func TestCompareLargeIntegers(t *testing.T) {
	cmp, err := Compare(model.String("1000000000000000000"), model.String("500000000000000000"))
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp <= 0 {
		t.Fatalf("expected 1e18 > 5e17, got %d", cmp)
	}

	cmp, err = Compare(model.String("10000000000000000001"), model.Number("10000000000000000000"))
	if err != nil || cmp != 1 {
		t.Fatalf("expected precise integer comparison, got %d %v", cmp, err)
	}
}

func TestHugeExponentIsNotComparable(t *testing.T) {
	cond := conditions(t, `{"value": {"gt": "1e2000000000"}}`)
	data := payload(t, `{"value": "1.5"}`)
	done := make(chan error, 1)
	go func() {
		_, err := Check(cond, data)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrNotComparable) {
			t.Fatalf("expected not comparable error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("evaluation did not return")
	}

	if !Evaluate(conditions(t, `{"value": {"gt": "1.5e3"}}`), payload(t, `{"value": "1500.01"}`)) {
		t.Fatalf("small exponents should still compare")
	}
	if Evaluate(conditions(t, `{"value": {"eq": 1e-2000000000}}`), payload(t, `{"value": 0.5}`)) {
		t.Fatalf("huge negative exponent should not match")
	}
}
