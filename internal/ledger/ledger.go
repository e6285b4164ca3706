package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Alias1177/perpbot/models"
)

// FileLedger is the append-only JSONL trade ledger: one self-contained
// record per line, file order = chronological close order. Appends are
// flushed synchronously so a crash immediately after a close loses nothing.
type FileLedger struct {
	path   string
	mu     sync.Mutex
	trades []models.Trade
	logger zerolog.Logger
}

// NewFileLedger opens (or creates) the ledger file and loads existing
// records into memory for the adapter's window queries.
func NewFileLedger(path string, logger zerolog.Logger) (*FileLedger, error) {
	l := &FileLedger{
		path:   path,
		logger: logger.With().Str("component", "ledger").Logger(),
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var trade models.Trade
		if err := json.Unmarshal(raw, &trade); err != nil {
			// Unparseable lines (typically a torn final line from a
			// crash) are skipped so one bad record cannot lose the
			// rest of the history.
			l.logger.Warn().Int("line", line).Err(err).Msg("Skipping unparseable ledger line")
			continue
		}
		l.trades = append(l.trades, trade)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	l.logger.Info().Int("trades", len(l.trades)).Str("path", path).Msg("Loaded trade ledger")
	return l, nil
}

// Append writes one closed trade as a JSON line and fsyncs before returning.
func (l *FileLedger) Append(trade models.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshaling trade: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger for append: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending trade: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing ledger: %w", err)
	}

	l.trades = append(l.trades, trade)
	return nil
}

// Recent returns the n most recent closed trades, oldest first.
func (l *FileLedger) Recent(n int) ([]models.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.trades) {
		n = len(l.trades)
	}
	out := make([]models.Trade, n)
	copy(out, l.trades[len(l.trades)-n:])
	return out, nil
}

// Count returns the total number of recorded trades.
func (l *FileLedger) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.trades), nil
}
