package contracts

// ABI fragments for the contracts the core reads from or calls. Only the
// entry points in use are listed.

const poolABI = `[
{"type":"function","name":"sellDaiPreview","stateMutability":"view","inputs":[{"name":"daiIn","type":"uint128"}],"outputs":[{"name":"","type":"uint128"}]},
{"type":"function","name":"buyDaiPreview","stateMutability":"view","inputs":[{"name":"daiOut","type":"uint128"}],"outputs":[{"name":"","type":"uint128"}]},
{"type":"function","name":"sellFYDaiPreview","stateMutability":"view","inputs":[{"name":"fyDaiIn","type":"uint128"}],"outputs":[{"name":"","type":"uint128"}]},
{"type":"function","name":"buyFYDaiPreview","stateMutability":"view","inputs":[{"name":"fyDaiOut","type":"uint128"}],"outputs":[{"name":"","type":"uint128"}]},
{"type":"function","name":"getDaiReserves","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]},
{"type":"function","name":"getFYDaiReserves","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint128"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"delegated","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"delegate","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"signatureCount","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"addDelegate","stateMutability":"nonpayable","inputs":[{"name":"delegate","type":"address"}],"outputs":[]}
]`

const tokenABI = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"maturity","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"isMature","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"fyDaiAmount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const controllerABI = `[
{"type":"function","name":"debtFYDai","stateMutability":"view","inputs":[{"name":"collateral","type":"bytes32"},{"name":"maturity","type":"uint256"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"debtDai","stateMutability":"view","inputs":[{"name":"collateral","type":"bytes32"},{"name":"maturity","type":"uint256"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"posted","stateMutability":"view","inputs":[{"name":"collateral","type":"bytes32"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"totalDebtDai","stateMutability":"view","inputs":[{"name":"collateral","type":"bytes32"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"delegated","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"delegate","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"signatureCount","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"addDelegate","stateMutability":"nonpayable","inputs":[{"name":"delegate","type":"address"}],"outputs":[]}
]`

const vatABI = `[
{"type":"function","name":"ilks","stateMutability":"view","inputs":[{"name":"ilk","type":"bytes32"}],"outputs":[{"name":"Art","type":"uint256"},{"name":"rate","type":"uint256"},{"name":"spot","type":"uint256"},{"name":"line","type":"uint256"},{"name":"dust","type":"uint256"}]}
]`

const proxyABI = `[
{"type":"function","name":"onboard","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"daiSignature","type":"bytes"},{"name":"controllerSig","type":"bytes"}],"outputs":[]},
{"type":"function","name":"post","stateMutability":"payable","inputs":[{"name":"to","type":"address"}],"outputs":[]},
{"type":"function","name":"withdrawWithSignature","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"controllerSig","type":"bytes"}],"outputs":[]},
{"type":"function","name":"borrowDaiForMaximumFYDaiWithSignature","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"collateral","type":"bytes32"},{"name":"maturity","type":"uint256"},{"name":"to","type":"address"},{"name":"daiToBorrow","type":"uint256"},{"name":"maximumFYDai","type":"uint256"},{"name":"controllerSig","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"repayDaiWithSignature","stateMutability":"nonpayable","inputs":[{"name":"collateral","type":"bytes32"},{"name":"maturity","type":"uint256"},{"name":"to","type":"address"},{"name":"daiAmount","type":"uint256"},{"name":"daiSig","type":"bytes"},{"name":"controllerSig","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"sellDaiWithSignature","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"to","type":"address"},{"name":"daiIn","type":"uint128"},{"name":"minFYDaiOut","type":"uint128"},{"name":"daiSig","type":"bytes"},{"name":"poolSig","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"buyDaiWithSignature","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"to","type":"address"},{"name":"daiOut","type":"uint128"},{"name":"maxFYDaiIn","type":"uint128"},{"name":"fyDaiSig","type":"bytes"},{"name":"poolSig","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"sellFYDaiWithSignature","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"to","type":"address"},{"name":"fyDaiIn","type":"uint128"},{"name":"minDaiOut","type":"uint128"},{"name":"fyDaiSig","type":"bytes"},{"name":"poolSig","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"buyFYDaiWithSignature","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"to","type":"address"},{"name":"fyDaiOut","type":"uint128"},{"name":"maxDaiIn","type":"uint128"},{"name":"daiSig","type":"bytes"},{"name":"poolSig","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"addLiquidityWithSignature","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"daiUsed","type":"uint256"},{"name":"maxFYDai","type":"uint256"},{"name":"daiSig","type":"bytes"},{"name":"fyDaiSig","type":"bytes"},{"name":"controllerSig","type":"bytes"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"removeLiquidityEarlyDaiPoolWithSignature","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"poolTokens","type":"uint256"},{"name":"minimumDaiPrice","type":"uint256"},{"name":"minimumFYDaiPrice","type":"uint256"},{"name":"controllerSig","type":"bytes"},{"name":"poolSig","type":"bytes"}],"outputs":[]},
{"type":"function","name":"removeLiquidityMatureWithSignature","stateMutability":"nonpayable","inputs":[{"name":"pool","type":"address"},{"name":"poolTokens","type":"uint256"},{"name":"controllerSig","type":"bytes"},{"name":"poolSig","type":"bytes"}],"outputs":[]}
]`
