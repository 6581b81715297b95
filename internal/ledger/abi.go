package ledger

// ABIs for the staked ERC20 token and the staking contract. Only the
// methods and events this client uses are included.

// TokenABI is the subset of ERC20 used by the client
const TokenABI = `[
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "symbol",
		"outputs": [{"name": "", "type": "string"}],
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "owner", "type": "address"},
			{"indexed": true, "name": "spender", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Approval",
		"type": "event"
	}
]`

// StakingABI is the staking contract surface: writes, per-user stake list,
// the diagnostic reads used by the health check and the WithdrawDebug event.
const StakingABI = `[
	{
		"inputs": [
			{"name": "amount", "type": "uint256"},
			{"name": "period", "type": "uint8"}
		],
		"name": "stake",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "stakeIndex", "type": "uint256"}],
		"name": "withdraw",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "stakeIndex", "type": "uint256"}],
		"name": "emergencyWithdraw",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "user", "type": "address"}],
		"name": "getUserStakingInfo",
		"outputs": [
			{
				"components": [
					{"name": "amount", "type": "uint128"},
					{"name": "startTime", "type": "uint48"},
					{"name": "endTime", "type": "uint48"},
					{"name": "lockPeriod", "type": "uint8"},
					{"name": "rewardMultiplier", "type": "uint256"},
					{"name": "active", "type": "bool"}
				],
				"name": "",
				"type": "tuple[]"
			}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "totalDistributed",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "treasuryWallet",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "rewardToken",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "", "type": "uint256"}],
		"name": "lockPeriods",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "", "type": "uint256"}],
		"name": "multipliers",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "user", "type": "address"},
			{"indexed": true, "name": "stakeId", "type": "uint256"},
			{"indexed": false, "name": "stakeAmount", "type": "uint256"},
			{"indexed": false, "name": "rewardMultiplier", "type": "uint256"},
			{"indexed": false, "name": "calculatedReward", "type": "uint256"},
			{"indexed": false, "name": "totalPayout", "type": "uint256"},
			{"indexed": false, "name": "contractBalance", "type": "uint256"}
		],
		"name": "WithdrawDebug",
		"type": "event"
	}
]`
