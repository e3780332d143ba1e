package usecase

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"SigTrack/internal/domain/models"
	"SigTrack/internal/repository"
)

var nanToken = regexp.MustCompile(`\bNaN\b`)

// RepairResult summarizes a history repair.
type RepairResult struct {
	Read       int
	Kept       int
	Duplicates int
	Dropped    int
}

// RepairHistory rewrites the history document at path: NaN tokens become
// null, duplicate keys keep their first entry, exit price and profit are
// normalized to numbers or null, and string hit flags become booleans.
// Run it offline; it is the only operation that rewrites history.
func RepairHistory(path string) (RepairResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RepairResult{}, fmt.Errorf("read history: %w", err)
	}
	raw = nanToken.ReplaceAll(raw, []byte("null"))

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return RepairResult{}, fmt.Errorf("parse history: %w", err)
	}

	res := RepairResult{Read: len(items)}
	seen := make(map[string]struct{}, len(items))
	cleaned := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(item, &m); err != nil || m == nil {
			res.Dropped++
			continue
		}
		key := rawText(m[models.KeySymbol]) + "|" + rawText(m[models.KeyWindowStart]) + "|" + rawText(m[models.KeyWindowEnd])
		if _, ok := seen[key]; ok {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		for _, k := range []string{"preco_saida", "lucro_pct"} {
			m[k] = numberOrNull(m[k])
		}
		for _, k := range []string{"bateu_alvo", "bateu_stop"} {
			if v, ok := m[k]; ok {
				m[k] = normalizeBool(v)
			}
		}
		cleaned = append(cleaned, m)
	}
	res.Kept = len(cleaned)

	if err := repository.WriteJSONArray(path, cleaned); err != nil {
		return res, fmt.Errorf("write history: %w", err)
	}
	return res, nil
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func numberOrNull(raw json.RawMessage) json.RawMessage {
	if v, ok := models.ParsePrice(raw); ok {
		return models.NumberRaw(v)
	}
	return json.RawMessage("null")
}

func normalizeBool(raw json.RawMessage) json.RawMessage {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "sim":
		return json.RawMessage("true")
	default:
		return json.RawMessage("false")
	}
}
