package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/fxstream-trading/internal/logger"
	"github.com/rxtech-lab/fxstream-trading/internal/types"
	"github.com/rxtech-lab/fxstream-trading/pkg/errors"
)

// maxLineSize bounds a single stream message.
const maxLineSize = 1 << 20

// OandaStream streams ticks from the OANDA v20 pricing stream endpoint: a
// long-lived HTTP response carrying newline-delimited JSON messages. The mock
// server speaks the same shape as SSE events, so an optional "data: " prefix
// is stripped before decoding.
type OandaStream struct {
	client    *http.Client
	streamURL string
	token     string
	log       *logger.Logger
}

// streamMessage is the wire shape of one pricing stream event. Heartbeats
// carry only Type and Time.
type streamMessage struct {
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	Time       string `json:"time"`
	Bids       []struct {
		Price string `json:"price"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
	} `json:"asks"`
}

// NewOandaStream creates a streaming provider for the given pricing stream
// URL. The timeout applies to connection establishment only; the response
// body is read for the connection's lifetime.
func NewOandaStream(streamURL, token string, timeout time.Duration, log *logger.Logger) *OandaStream {
	return &OandaStream{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
		streamURL: streamURL,
		token:     token,
		log:       log,
	}
}

// Stream connects to the pricing stream and yields one Tick per PRICE
// message. Malformed messages and heartbeats are skipped; the sequence ends
// with a FeedDisconnected error when the connection drops, or silently on
// context cancellation.
func (s *OandaStream) Stream(ctx context.Context, instruments []string) iter.Seq2[types.Tick, error] {
	return func(yield func(types.Tick, error) bool) {
		resp, err := s.connect(ctx, instruments)
		if err != nil {
			yield(types.Tick{}, err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			// The mock feed frames messages as SSE events.
			line = strings.TrimPrefix(line, "data: ")

			tick, ok, err := s.parseLine(line)
			if err != nil {
				// One bad message never aborts the stream.
				if !yield(types.Tick{}, err) {
					return
				}

				continue
			}

			if !ok {
				continue
			}

			if !yield(tick, nil) {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}

		scanErr := scanner.Err()
		if scanErr == nil {
			yield(types.Tick{}, errors.New(errors.ErrCodeFeedDisconnected, "pricing stream closed by server"))
			return
		}

		yield(types.Tick{}, errors.Wrap(errors.ErrCodeFeedDisconnected, "pricing stream read failed", scanErr))
	}
}

func (s *OandaStream) connect(ctx context.Context, instruments []string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.streamURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFeedDisconnected, "invalid stream request", err)
	}

	query := url.Values{}
	query.Set("instruments", strings.Join(instruments, ","))
	req.URL.RawQuery = query.Encode()

	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFeedDisconnected, "failed to connect to pricing stream", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()

		return nil, errors.Newf(errors.ErrCodeFeedDisconnected,
			"pricing stream returned status %d", resp.StatusCode)
	}

	s.log.Info("connected to pricing stream",
		zap.String("url", s.streamURL),
		zap.Strings("instruments", instruments))

	return resp, nil
}

// parseLine decodes one stream line. ok is false for messages that are valid
// but not price updates (heartbeats).
func (s *OandaStream) parseLine(line string) (types.Tick, bool, error) {
	var msg streamMessage

	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return types.Tick{}, false, errors.Wrap(errors.ErrCodeParseError, "malformed stream message", err)
	}

	if msg.Type != "PRICE" {
		return types.Tick{}, false, nil
	}

	if msg.Instrument == "" || len(msg.Bids) == 0 {
		return types.Tick{}, false, errors.Newf(errors.ErrCodeParseError,
			"price message missing instrument or bids: %s", line)
	}

	bid, err := strconv.ParseFloat(msg.Bids[0].Price, 64)
	if err != nil {
		return types.Tick{}, false, errors.Wrap(errors.ErrCodeParseError, "unparseable bid price", err)
	}

	// Some feeds omit asks; fall back to the bid so the tick stays usable.
	ask := bid
	if len(msg.Asks) > 0 {
		ask, err = strconv.ParseFloat(msg.Asks[0].Price, 64)
		if err != nil {
			return types.Tick{}, false, errors.Wrap(errors.ErrCodeParseError, "unparseable ask price", err)
		}
	}

	at, err := time.Parse(time.RFC3339Nano, msg.Time)
	if err != nil {
		at = time.Now()
	}

	return types.Tick{
		Instrument: msg.Instrument,
		Bid:        bid,
		Ask:        ask,
		Time:       at,
	}, true, nil
}

var _ Provider = (*OandaStream)(nil)
