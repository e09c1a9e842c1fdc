package domain

import "errors"

type CheckoutStage string

// remember to add new stages to the validCheckoutStages map
const (
	CheckoutStageCollectingBilling  CheckoutStage = "collecting-billing"
	CheckoutStageCollectingShipping CheckoutStage = "collecting-shipping"
	CheckoutStageSelectingCarriers  CheckoutStage = "selecting-carriers"
	CheckoutStageAwaitingTax        CheckoutStage = "awaiting-tax"
	CheckoutStageReadyToPay         CheckoutStage = "ready-to-pay"
	CheckoutStagePaid               CheckoutStage = "paid"
)

var validCheckoutStages = map[CheckoutStage]struct{}{
	CheckoutStageCollectingBilling:  {},
	CheckoutStageCollectingShipping: {},
	CheckoutStageSelectingCarriers:  {},
	CheckoutStageAwaitingTax:        {},
	CheckoutStageReadyToPay:         {},
	CheckoutStagePaid:               {},
}

func ToCheckoutStage(s string) (CheckoutStage, error) {
	stage := CheckoutStage(s)
	if _, ok := validCheckoutStages[stage]; ok {
		return stage, nil
	}

	return "", errors.New("invalid checkout stage")
}

func CheckoutStages() []CheckoutStage {
	result := make([]CheckoutStage, 0, len(validCheckoutStages))
	for stage := range validCheckoutStages {
		result = append(result, stage)
	}
	return result
}
