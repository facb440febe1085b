// Package botgateway реализует HTTP-клиент шлюза бота — внешнего сервиса,
// который держит соединение с мессенджером и отправляет пользователям
// сообщения и платёжные предложения.
package botgateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// Client — клиент API шлюза бота.
type Client struct {
	apiURL     string
	apiToken   string
	httpClient *http.Client
}

// NewClient создаёт новый клиент шлюза бота.
func NewClient(apiURL, apiToken string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiURL:     apiURL,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.New("unexpected status: " + resp.Status)
	}
	return nil
}

// SendMessage отправляет пользователю текст; корреляционный токен вопроса
// шлюз вшивает в метаданные сообщения.
func (c *Client) SendMessage(d models.Delivery) error {
	req, err := c.newRequest("/messages", d)
	if err != nil {
		return err
	}
	return c.do(req)
}

// SendInvoice отправляет пользователю платёжное предложение.
func (c *Client) SendInvoice(inv models.Invoice) error {
	req, err := c.newRequest("/invoices", inv)
	if err != nil {
		return err
	}
	return c.do(req)
}

// SendAlert отправляет сигнал в канал оператора.
func (c *Client) SendAlert(a models.OperatorAlert) error {
	req, err := c.newRequest("/operator/alerts", a)
	if err != nil {
		return err
	}
	return c.do(req)
}
