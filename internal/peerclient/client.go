// Пакет peerclient — HTTP-клиент для доставки записей на удалённые
// серверы. Поддерживает TLS с кастомным CA (SM_PEER_CA_CERT_PATH).
// Операции: PushEntry (POST /api/v1/sync/entries), PushFileContent
// (PUT /api/v1/sync/files/{uid}/content).
package peerclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bigkaa/gojournal/sync-module/internal/domain/model"
	"github.com/bigkaa/gojournal/sync-module/internal/domain/wire"
)

// ErrRejected — удалённый сервер не принял запись.
// Любой ответ кроме 200/201/202 считается отказом; повторных попыток
// внутри клиента нет, запись останется кандидатом следующего запуска.
var ErrRejected = errors.New("удалённый сервер отклонил запись")

// TokenProvider — функция, возвращающая JWT для авторизации запросов
// к удалённому серверу.
type TokenProvider func(ctx context.Context) (string, error)

// Client — HTTP-клиент для удалённых серверов журналов.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент удалённых серверов.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
func New(caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата удалённых серверов: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат удалённых серверов добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "peer_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// PushEntry доставляет запись на удалённый сервер.
// POST /api/v1/sync/entries — требует peer-токен.
// nil означает, что сервер принял запись (200/201/202); любой другой
// исход, включая транспортную ошибку, возвращается как ошибка.
func (c *Client) PushEntry(ctx context.Context, server *model.RemoteServer, tokens TokenProvider, payload *wire.EntrySyncPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("сериализация записи %s: %w", payload.UID, err)
	}

	reqURL := normalizeURL(server.URL) + "/api/v1/sync/entries"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса PushEntry: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.authorize(ctx, req, tokens); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос PushEntry к %s: %w", server.Name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: сервер %s вернул статус %d: %s",
			ErrRejected, server.Name, resp.StatusCode, string(respBody))
	}
}

// PushFileContent передаёт содержимое файлового вложения на удалённый
// сервер. PUT /api/v1/sync/files/{uid}/content — требует peer-токен.
// Содержимое передаётся отдельно от метаданных записи.
func (c *Client) PushFileContent(ctx context.Context, server *model.RemoteServer, tokens TokenProvider, fileUID, contentType string, content io.Reader, size int64) error {
	reqURL := fmt.Sprintf("%s/api/v1/sync/files/%s/content", normalizeURL(server.URL), fileUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, content)
	if err != nil {
		return fmt.Errorf("создание запроса PushFileContent: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	if err := c.authorize(ctx, req, tokens); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос PushFileContent к %s: %w", server.Name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: сервер %s вернул статус %d на содержимое файла %s: %s",
			ErrRejected, server.Name, resp.StatusCode, fileUID, string(respBody))
	}
}

// authorize добавляет peer-токен в запрос.
func (c *Client) authorize(ctx context.Context, req *http.Request, tokens TokenProvider) error {
	if tokens == nil {
		return nil
	}
	token, err := tokens(ctx)
	if err != nil {
		return fmt.Errorf("получение peer-токена: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
