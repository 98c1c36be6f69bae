package enums

import "fmt"

// SellerType is the seller's declared account type used for commission matching.
type SellerType string

const (
	SellerTypeIndividual SellerType = "individual"
	SellerTypeBusiness   SellerType = "business"
)

var validSellerTypes = []SellerType{
	SellerTypeIndividual,
	SellerTypeBusiness,
}

func (s SellerType) String() string {
	return string(s)
}

func (s SellerType) IsValid() bool {
	for _, candidate := range validSellerTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseSellerType(value string) (SellerType, error) {
	for _, candidate := range validSellerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid seller type %q", value)
}
