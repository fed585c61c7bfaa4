package decision

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Upstream decision agents emit JSON, sometimes wrapped in a markdown fence.
// Parse extracts the object, validates it against the trade schema, and maps
// it onto a ProposedTrade.

const tradeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"enum": ["buy", "sell", "hold"]},
    "quantity": {"type": "number", "minimum": 0},
    "amount": {"type": "number", "minimum": 0},
    "entry_price": {"type": "number", "minimum": 0},
    "stop_loss": {"type": "number", "minimum": 0},
    "take_profit": {"type": "number", "minimum": 0},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"},
    "strategy": {"enum": ["dca", "swing", "day"]},
    "timestamp": {"type": "string"}
  }
}`

var compiledTradeSchema = jsonschema.MustCompileString("proposed_trade.json", tradeSchema)

// Parse turns raw upstream output into a ProposedTrade.
func Parse(raw string) (ProposedTrade, error) {
	body, ok := ExtractJSON(raw)
	if !ok {
		return ProposedTrade{}, fmt.Errorf("no JSON object found in upstream output")
	}
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return ProposedTrade{}, fmt.Errorf("invalid trade JSON: %w", err)
	}
	if err := compiledTradeSchema.Validate(doc); err != nil {
		return ProposedTrade{}, fmt.Errorf("trade JSON failed schema validation: %w", err)
	}

	parsed := gjson.Parse(body)
	trade := ProposedTrade{
		Action:     strings.ToLower(parsed.Get("action").String()),
		Quantity:   parsed.Get("quantity").Float(),
		EntryPrice: parsed.Get("entry_price").Float(),
		StopLoss:   parsed.Get("stop_loss").Float(),
		TakeProfit: parsed.Get("take_profit").Float(),
		Confidence: parsed.Get("confidence").Float(),
		Reasoning:  parsed.Get("reasoning").String(),
		Strategy:   strings.ToLower(parsed.Get("strategy").String()),
	}
	// Some agents report the size as "amount" instead of "quantity".
	if trade.Quantity == 0 {
		trade.Quantity = parsed.Get("amount").Float()
	}
	if ts := parsed.Get("timestamp").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			trade.Timestamp = t
		}
	}
	if err := trade.ValidateBasic(); err != nil {
		return ProposedTrade{}, err
	}
	return trade, nil
}

// ExtractJSON pulls the first JSON object out of raw text, stripping a
// surrounding markdown fence when present.
func ExtractJSON(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if inner, ok := stripFence(raw); ok {
		raw = inner
	}
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

func stripFence(raw string) (string, bool) {
	const fence = "```"
	start := strings.Index(raw, fence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(fence):]
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// Drop a language marker such as "json" on the fence line.
	if idx := strings.IndexByte(block, '\n'); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", false
	}
	return block, true
}
