// Package gateway is a thin client for the node's container runtime
// gateway: list, create, stop, and remove containers by name or label.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/rezn-project/rezn/internal/model"
)

const requestTimeout = 20 * time.Second

// Client talks to the runtime gateway over HTTP using a pooled,
// connection-reusing transport rather than the default http.Client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a gateway client against baseURL.
func New(baseURL string) *Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = requestTimeout
	return &Client{baseURL: baseURL, http: c}
}

type portMap struct {
	Container uint16 `json:"container"`
	Host      uint16 `json:"host"`
}

type createRequest struct {
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Ports  []portMap         `json:"ports"`
	Labels map[string]string `json:"labels"`
}

// ListByLabel returns every container whose label selector matches
// "pod=<podLabel>", the primary identity check per container.
func (c *Client) ListByLabel(podLabel string) ([]model.ContainerSummary, error) {
	u := fmt.Sprintf("%s/containers?label=%s", c.baseURL, url.QueryEscape("pod="+podLabel))
	resp, err := c.http.Get(u)
	if err != nil {
		return nil, model.WrapOp("gateway.ListByLabel", podLabel, model.ErrGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, model.WrapOp("gateway.ListByLabel", podLabel, model.ErrGateway, statusError(resp.StatusCode))
	}

	var containers []model.ContainerSummary
	if err := json.NewDecoder(resp.Body).Decode(&containers); err != nil {
		return nil, model.WrapOp("gateway.ListByLabel", podLabel, model.ErrGateway, err)
	}
	return containers, nil
}

// Create starts a container for the given pod, tagging it with both the
// mol and pod identity labels.
func (c *Client) Create(name, image string, ports []uint16, molName, podLabel string) error {
	portMaps := make([]portMap, len(ports))
	for i, p := range ports {
		portMaps[i] = portMap{Container: p, Host: 0}
	}

	body := createRequest{
		Name:  name,
		Image: image,
		Ports: portMaps,
		Labels: map[string]string{
			"mol": molName,
			"pod": podLabel,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return model.WrapOp("gateway.Create", name, model.ErrGateway, err)
	}

	resp, err := c.http.Post(c.baseURL+"/containers", "application/json", bytes.NewReader(payload))
	if err != nil {
		return model.WrapOp("gateway.Create", name, model.ErrGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return model.WrapOp("gateway.Create", name, model.ErrGateway, statusError(resp.StatusCode))
	}
	return nil
}

// Stop stops the named container.
func (c *Client) Stop(name string) error {
	return c.post(fmt.Sprintf("/containers/%s/stop", name), nil, "gateway.Stop", name)
}

// Remove forcibly removes the named container.
func (c *Client) Remove(name string) error {
	payload, _ := json.Marshal(map[string]bool{"force": true})
	return c.post(fmt.Sprintf("/containers/%s/remove", name), payload, "gateway.Remove", name)
}

func (c *Client) post(path string, payload []byte, op, subject string) error {
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return model.WrapOp(op, subject, model.ErrGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return model.WrapOp(op, subject, model.ErrGateway, statusError(resp.StatusCode))
	}
	return nil
}

type statusError int

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", int(e))
}
