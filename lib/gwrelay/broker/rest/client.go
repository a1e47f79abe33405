package rest

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Client struct {
	addr string
}

func NewClient(addr string) *Client {
	return &Client{
		addr: addr,
	}
}

func (c *Client) do(method string, path string, body []byte, respData interface{}) error {
	r := bytes.NewReader(body)

	req, err := http.NewRequest(method, c.addr+path, r)
	if err != nil {
		return errors.WithMessage(err, "http.NewRequest")
	}

	req.Header.Add("content-type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.WithMessage(err, "http.Do")
	}

	defer resp.Body.Close()
	if respData != nil {
		fullBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.WithMessage(err, "io.ReadAll")
		}

		return errors.WithMessage(json.Unmarshal(fullBody, respData), "json.Unmarshal")
	}

	return nil
}

func (c *Client) GetStatus() (status *StatusResponse, err error) {
	err = c.do("GET", "/status", nil, &status)
	return
}

func (c *Client) handleBasicResponse(br *BasicResponse) (msg string, err error) {
	if br.Error {
		return "", errors.New(br.Message)
	}

	return br.Message, nil
}

// DisconnectSlot closes the worker connection on the slot, the worker reconnects and a pooled connection takes over
func (c *Client) DisconnectSlot(slot int) (msg string, err error) {
	var resp BasicResponse

	body := url.Values{
		"slot": []string{strconv.Itoa(slot)},
	}

	err = c.do("POST", "/disconnectslot", []byte(body.Encode()), &resp)
	if err != nil {
		return "", err
	}

	return c.handleBasicResponse(&resp)
}
