package contract

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// Method names of the Assessment contract.
const (
	MethodGetBalance        = "getBalance"
	MethodDeposit           = "deposit"
	MethodWithdraw          = "withdraw"
	MethodMultiplyBalance   = "multiplyBalance"
	MethodTransferOwnership = "transferOwnership"
)

// AssessmentABI is the subset of the Assessment contract ABI the ATM uses.
const AssessmentABI = `[
	{"inputs":[],"name":"getBalance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"_amount","type":"uint256"}],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"_withdrawAmount","type":"uint256"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"_multiplier","type":"uint256"}],"name":"multiplyBalance","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"_newOwner","type":"address"}],"name":"transferOwnership","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var requiredMethods = []string{ //nolint:gochecknoglobals
	MethodGetBalance,
	MethodDeposit,
	MethodWithdraw,
	MethodMultiplyBalance,
	MethodTransferOwnership,
}

// hardhatArtifact is the shape of artifacts/contracts/*.sol/*.json.
type hardhatArtifact struct {
	ContractName string              `json:"contractName"`
	ABI          jsoniter.RawMessage `json:"abi"`
}

// LoadABI reads the contract ABI from path. An empty path returns the built-in AssessmentABI.
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return ParseABI([]byte(AssessmentABI))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read ABI file %s: %w", path, err)
	}
	parsed, err := ParseABI(data)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("ABI file %s: %w", path, err)
	}
	return parsed, nil
}

// ParseABI accepts either a Hardhat artifact or a raw ABI array and checks that every
// method the ATM calls is present.
func ParseABI(data []byte) (abi.ABI, error) {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '{' {
		var artifact hardhatArtifact
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return abi.ABI{}, fmt.Errorf("failed to decode contract artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, fmt.Errorf("contract artifact %q has no abi field", artifact.ContractName)
		}
		raw = artifact.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}

	var missing []string
	for _, name := range requiredMethods {
		if _, ok := parsed.Methods[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return abi.ABI{}, fmt.Errorf("ABI is missing methods: %s", strings.Join(missing, ", "))
	}
	return parsed, nil
}
