package streamapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tokonoko12/playdeck/internal/domain"
)

// decodeStreamCollection decodes {"streams": {<quality>: [source...]}}
// walking the object token by token. A plain map[string]... would throw
// away the response's tier order, and the selector's tie-break depends on
// that order being preserved.
func decodeStreamCollection(body []byte) (domain.SourceCollection, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var col domain.SourceCollection
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if key != "streams" {
			// Skip unknown top-level fields.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		for dec.More() {
			qtok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			quality, ok := qtok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected key token %v", qtok)
			}
			var sources []domain.SourceRef
			if err := dec.Decode(&sources); err != nil {
				return nil, err
			}
			if len(sources) == 0 {
				continue
			}
			for i := range sources {
				if sources[i].Quality == "" {
					sources[i].Quality = quality
				}
			}
			col = append(col, domain.SourceTier{Quality: quality, Sources: sources})
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}

	return col, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
