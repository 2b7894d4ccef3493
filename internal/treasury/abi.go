package treasury

// contractABI is the Reef treasury contract's ABI, compiled in rather
// than loaded from a hardhat artifact file on disk — the engine ships
// standalone and has no build-time access to the contract repository.
// Method set mirrors §6: hasEnteredSeason, getCurrentEntryFee,
// getSeasonInfo, distributeLeviathan, distributeNull, distributeTournament.
const contractABI = `[
  {"type":"function","name":"hasEnteredSeason","stateMutability":"view",
   "inputs":[{"name":"season","type":"uint256"},{"name":"wallet","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getCurrentEntryFee","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getSeasonInfo","stateMutability":"view",
   "inputs":[],
   "outputs":[
     {"name":"season","type":"uint256"},
     {"name":"startTime","type":"uint256"},
     {"name":"day","type":"uint256"},
     {"name":"entryFee","type":"uint256"},
     {"name":"poolUnlockBps","type":"uint256"}
   ]},
  {"type":"function","name":"distributeLeviathan","stateMutability":"nonpayable",
   "inputs":[
     {"name":"spawnId","type":"uint256"},
     {"name":"winners","type":"address[]"},
     {"name":"sharesBps","type":"uint256[]"},
     {"name":"totalDamage","type":"uint256"}
   ],"outputs":[]},
  {"type":"function","name":"distributeNull","stateMutability":"nonpayable",
   "inputs":[
     {"name":"winners","type":"address[]"},
     {"name":"sharesBps","type":"uint256[]"},
     {"name":"totalDamage","type":"uint256"}
   ],"outputs":[]},
  {"type":"function","name":"distributeTournament","stateMutability":"nonpayable",
   "inputs":[
     {"name":"tournamentId","type":"uint256"},
     {"name":"winner","type":"address"},
     {"name":"tier","type":"uint8"}
   ],"outputs":[]}
]`
