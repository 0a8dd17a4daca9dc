package types

// WithdrawRequest asks the bridge to move value out of a contract's balance
// into the destination model. ContractID must equal the calling contract.
type WithdrawRequest struct {
	ContractID  ContractID  `json:"contract"`
	Value       uint64      `json:"value"`
	Destination Destination `json:"destination"`
}

// ConvertRequest swaps the transactor's own value between the shielded and
// transparent models. The debited side is the deposit the transaction
// earmarked for the transfer contract itself; Destination picks the credited
// side.
type ConvertRequest struct {
	Value       uint64      `json:"value"`
	Destination Destination `json:"destination"`
}

// MintRequest issues consensus rewards. Only the privileged staking contract
// may submit it; the credit has no corresponding debit.
type MintRequest struct {
	Value       uint64      `json:"value"`
	Destination Destination `json:"destination"`
}

// ContractTransferRequest moves value from the calling contract's balance to
// another contract.
type ContractTransferRequest struct {
	To    ContractID `json:"to"`
	Value uint64     `json:"value"`
}
