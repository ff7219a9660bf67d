package restyutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

// MessageID names an archived exchange, the sequence number keeps the
// archive in request order and the url digest keeps names stable.
func MessageID(seq uint64, link string) string {
	digest := sha256.Sum256([]byte(link))
	return fmt.Sprintf("%05d-%s.txt", seq, hex.EncodeToString(digest[:])[:12])
}

// InstrumentClient writes every completed exchange of the client to output.
// `output` can be nil, if it is, then the function is a no-op
func InstrumentClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}

	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := MessageID(atomic.AddUint64(&idcounter, 1), res.Request.URL)
		output.Write(id, FormatExchange(res))
		slog.DebugContext(
			res.Request.Context(), "archived exchange",
			"url", res.Request.URL,
			"status", res.StatusCode(),
			"message_id", id,
		)
		return nil
	})
}
