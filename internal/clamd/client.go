// Пакет clamd — клиент демона ClamAV через unix-сокет.
//
// Используются команды протокола clamd с z-префиксом (ответ завершается \0):
//   - zPING — проверка доступности, ответ PONG
//   - zINSTREAM — потоковая передача данных чанками
//     (4 байта big-endian длины + данные), завершается чанком нулевой длины
//
// Ответ на INSTREAM: "stream: OK" или "stream: <имя угрозы> FOUND".
package clamd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Статусы вердикта.
const (
	StatusClean       = "clean"
	StatusInfected    = "infected"
	StatusUnavailable = "unavailable"
)

// chunkSize — размер чанка INSTREAM (1 MiB).
const chunkSize = 1 << 20

// maxResponseSize — максимальная длина ответа демона.
const maxResponseSize = 4096

// ErrUnexpectedResponse — ответ демона не распознан.
var ErrUnexpectedResponse = errors.New("clamd: неожиданный ответ")

// Verdict — результат проверки потока.
type Verdict struct {
	Status string
	Threat string
	// Message — причина недоступности
	Message string
}

// Client — клиент clamd.
type Client struct {
	socketPath string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient создаёт клиента для сокета socketPath.
// timeout ограничивает одну операцию (подключение + обмен).
func NewClient(socketPath string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		socketPath: socketPath,
		timeout:    timeout,
		logger:     logger.With(slog.String("component", "clamd")),
	}
}

// SocketPath возвращает путь к сокету демона.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Ping проверяет доступность демона.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("zPING\x00")); err != nil {
		return fmt.Errorf("clamd: отправка PING: %w", err)
	}
	resp, err := readResponse(conn)
	if err != nil {
		return err
	}
	if resp != "PONG" {
		return fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	return nil
}

// Scan передаёт поток r демону и возвращает вердикт.
// Недоступность демона возвращается как вердикт unavailable без ошибки;
// ошибка означает нераспознанный ответ или сбой чтения r.
func (c *Client) Scan(ctx context.Context, r io.Reader) (Verdict, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Warn("ClamAV недоступен", slog.String("error", err.Error()))
		return Verdict{Status: StatusUnavailable, Message: err.Error()}, nil
	}
	defer conn.Close()

	if err := stream(conn, r); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) {
			return Verdict{Status: StatusUnavailable, Message: err.Error()}, nil
		}
		return Verdict{}, err
	}

	resp, err := readResponse(conn)
	if err != nil {
		return Verdict{Status: StatusUnavailable, Message: err.Error()}, nil
	}
	return parseScanResponse(resp)
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("clamd: подключение к %s: %w", c.socketPath, err)
	}
	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)
	return conn, nil
}

// stream отправляет команду INSTREAM и данные чанками.
func stream(w io.Writer, r io.Reader) error {
	bw := bufio.NewWriterSize(w, chunkSize+4)
	if _, err := bw.WriteString("zINSTREAM\x00"); err != nil {
		return fmt.Errorf("clamd: отправка INSTREAM: %w", err)
	}

	buf := make([]byte, chunkSize)
	var lenPrefix [4]byte
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			binary.BigEndian.PutUint32(lenPrefix[:], uint32(n))
			if _, err := bw.Write(lenPrefix[:]); err != nil {
				return fmt.Errorf("clamd: отправка чанка: %w", err)
			}
			if _, err := bw.Write(buf[:n]); err != nil {
				return fmt.Errorf("clamd: отправка чанка: %w", err)
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("clamd: чтение данных: %w", rerr)
		}
	}

	binary.BigEndian.PutUint32(lenPrefix[:], 0)
	if _, err := bw.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("clamd: отправка терминатора: %w", err)
	}
	return bw.Flush()
}

// readResponse читает ответ до \0 или закрытия соединения.
func readResponse(r io.Reader) (string, error) {
	br := bufio.NewReader(io.LimitReader(r, maxResponseSize))
	data, err := br.ReadBytes(0)
	if err != nil && !(errors.Is(err, io.EOF) && len(data) > 0) {
		return "", fmt.Errorf("clamd: чтение ответа: %w", err)
	}
	data = bytes.TrimSuffix(data, []byte{0})
	return strings.TrimSpace(string(data)), nil
}

// parseScanResponse разбирает ответ INSTREAM.
func parseScanResponse(resp string) (Verdict, error) {
	_, result, ok := strings.Cut(resp, ":")
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
	result = strings.TrimSpace(result)

	switch {
	case result == "OK":
		return Verdict{Status: StatusClean}, nil
	case strings.HasSuffix(result, "FOUND"):
		threat := strings.TrimSpace(strings.TrimSuffix(result, "FOUND"))
		if threat == "" {
			threat = "Unknown"
		}
		return Verdict{Status: StatusInfected, Threat: threat}, nil
	default:
		return Verdict{}, fmt.Errorf("%w: %q", ErrUnexpectedResponse, resp)
	}
}
