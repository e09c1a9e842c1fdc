package graphql

import (
	"context"
	"errors"

	"github.com/nikolayk812/checkoutflow/internal/domain"
)

const checkOutstandingConsentsQuery = `
query CheckOutstandingConsents($scope: String!) {
  checkOutstandingConsents(scope: $scope) {
    documentType
    documentId
    title
    content
    version
    effectiveDate
    placeholders
  }
}`

const recordConsentsMutation = `
mutation RecordConsents($inputs: [ConsentInput!]!) {
  recordConsents(inputs: $inputs) {
    success
  }
}`

func (c *Client) CheckOutstandingConsents(ctx context.Context, scope domain.ConsentScope) ([]domain.ConsentDocument, error) {
	var resp struct {
		CheckOutstandingConsents []domain.ConsentDocument `json:"checkOutstandingConsents"`
	}

	if err := c.run(ctx, "checkOutstandingConsents", checkOutstandingConsentsQuery,
		map[string]any{"scope": string(scope)}, &resp); err != nil {
		return nil, err
	}

	return resp.CheckOutstandingConsents, nil
}

func (c *Client) RecordConsents(ctx context.Context, inputs []domain.ConsentAcceptance) error {
	var resp struct {
		RecordConsents struct {
			Success bool `json:"success"`
		} `json:"recordConsents"`
	}

	if err := c.run(ctx, "recordConsents", recordConsentsMutation,
		map[string]any{"inputs": inputs}, &resp); err != nil {
		return err
	}

	if !resp.RecordConsents.Success {
		return errors.New("recordConsents: not recorded")
	}

	return nil
}
