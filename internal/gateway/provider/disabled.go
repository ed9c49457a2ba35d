package provider

import "context"

// disabledClient stands in for a provider whose credentials are missing.
type disabledClient struct {
	id string
}

func NewDisabledClient(id string) Client {
	return &disabledClient{id: id}
}

func (d *disabledClient) ID() string    { return d.id }
func (d *disabledClient) Enabled() bool { return false }

func (d *disabledClient) Send(context.Context, []Message) (string, error) {
	return "", &Error{ProviderID: d.id, Kind: KindDisabled, Err: ErrDisabled}
}
