package pimii

// Reserved symbol indices. The assignment order below is fixed: it is
// the order Storage.initializeSymbols installs them in, and every
// symbol atom built from one of these indices compares equal across
// every Storage instance for the lifetime of the process (spec §3.3).
//
// New symbols may only be appended after the reserved block; never
// insert in the middle, or every compiled bytecode list in memory
// becomes stale.
const (
	symIdxTrue = iota
	symIdxFalse

	// opcode symbols, emitted directly into bytecode lists by the
	// compiler and dispatched on by the VM.
	symIdxOpNIL
	symIdxOpLDC
	symIdxOpLD
	symIdxOpST
	symIdxOpLDG
	symIdxOpSTG
	symIdxOpLDF
	symIdxOpAP
	symIdxOpAP0
	symIdxOpRTN
	symIdxOpLongRTN
	symIdxOpBT
	symIdxOpJOIN
	symIdxOpCAR
	symIdxOpCDR
	symIdxOpCONS
	symIdxOpRPLCAR
	symIdxOpRPLCDR
	symIdxOpCHAIN
	symIdxOpCHAINEND
	symIdxOpSPLIT
	symIdxOpEQ
	symIdxOpNE
	symIdxOpLT
	symIdxOpLTQ
	symIdxOpGT
	symIdxOpGTQ
	symIdxOpADD
	symIdxOpSUB
	symIdxOpMUL
	symIdxOpDIV
	symIdxOpREM
	symIdxOpAND
	symIdxOpOR
	symIdxOpNOT
	symIdxOpFILE
	symIdxOpLINE
	symIdxOpSTOP

	// type symbols returned by the `typeOf` BIF
	symIdxTypeNil
	symIdxTypeSymbol
	symIdxTypeNumber
	symIdxTypeCons
	symIdxTypeBIF
	symIdxTypeGlobal
	symIdxTypeString
	symIdxTypeDecimal
	symIdxTypeReference
	symIdxTypeArray

	// status keys exposed through Engine.GetValue/SetValue (spec §6.1)
	symIdxHomePath
	symIdxOpCount
	symIdxGCCount
	symIdxGCEfficiency
	symIdxNumGCRoots
	symIdxNumSymbols
	symIdxNumGlobals
	symIdxNumTotalCells
	symIdxNumCellsUsed
	symIdxNumTotalStrings
	symIdxNumStringsUsed
	symIdxNumTotalLargeNumbers
	symIdxNumLargeNumbersUsed
	symIdxNumTotalDecimals
	symIdxNumDecimalsUsed
	symIdxNumTotalReferences
	symIdxNumReferencesUsed
	symIdxNumTotalArrays
	symIdxNumArraysUsed

	numReservedSymbols
)

// reservedSymbolNames gives the source text for each reserved symbol,
// in the exact order declared above. initializeSymbols relies on this
// slice's index lining up with the symIdx* constants.
var reservedSymbolNames = [numReservedSymbols]string{
	symIdxTrue:  "true",
	symIdxFalse: "false",

	symIdxOpNIL:     "NIL",
	symIdxOpLDC:     "LDC",
	symIdxOpLD:      "LD",
	symIdxOpST:      "ST",
	symIdxOpLDG:     "LDG",
	symIdxOpSTG:     "STG",
	symIdxOpLDF:     "LDF",
	symIdxOpAP:      "AP",
	symIdxOpAP0:     "AP0",
	symIdxOpRTN:     "RTN",
	symIdxOpLongRTN: "LONG_RTN",
	symIdxOpBT:      "BT",
	symIdxOpJOIN:    "JOIN",
	symIdxOpCAR:     "CAR",
	symIdxOpCDR:     "CDR",
	symIdxOpCONS:    "CONS",
	symIdxOpRPLCAR:  "RPLCAR",
	symIdxOpRPLCDR:  "RPLCDR",
	symIdxOpCHAIN:    "CHAIN",
	symIdxOpCHAINEND: "CHAINEND",
	symIdxOpSPLIT:    "SPLIT",
	symIdxOpEQ:       "EQ",
	symIdxOpNE:       "NE",
	symIdxOpLT:       "LT",
	symIdxOpLTQ:      "LTQ",
	symIdxOpGT:       "GT",
	symIdxOpGTQ:      "GTQ",
	symIdxOpADD:      "ADD",
	symIdxOpSUB:      "SUB",
	symIdxOpMUL:      "MUL",
	symIdxOpDIV:      "DIV",
	symIdxOpREM:      "REM",
	symIdxOpAND:      "AND",
	symIdxOpOR:       "OR",
	symIdxOpNOT:      "NOT",
	symIdxOpFILE:     "FILE",
	symIdxOpLINE:     "LINE",
	symIdxOpSTOP:     "STOP",

	symIdxTypeNil:       "Nil",
	symIdxTypeSymbol:    "Symbol",
	symIdxTypeNumber:    "Number",
	symIdxTypeCons:      "Cons",
	symIdxTypeBIF:       "BIF",
	symIdxTypeGlobal:    "Global",
	symIdxTypeString:    "String",
	symIdxTypeDecimal:   "Decimal",
	symIdxTypeReference: "Reference",
	symIdxTypeArray:     "Array",

	symIdxHomePath:             "HOME_PATH",
	symIdxOpCount:              "OP_COUNT",
	symIdxGCCount:              "GC_COUNT",
	symIdxGCEfficiency:         "GC_EFFICIENCY",
	symIdxNumGCRoots:           "NUM_GC_ROOTS",
	symIdxNumSymbols:           "NUM_SYMBOLS",
	symIdxNumGlobals:           "NUM_GLOBALS",
	symIdxNumTotalCells:        "NUM_TOTAL_CELLS",
	symIdxNumCellsUsed:         "NUM_CELLS_USED",
	symIdxNumTotalStrings:      "NUM_TOTAL_STRINGS",
	symIdxNumStringsUsed:       "NUM_STRINGS_USED",
	symIdxNumTotalLargeNumbers: "NUM_TOTAL_LARGE_NUMBERS",
	symIdxNumLargeNumbersUsed:  "NUM_LARGE_NUMBERS_USED",
	symIdxNumTotalDecimals:     "NUM_TOTAL_DECIMALS",
	symIdxNumDecimalsUsed:      "NUM_DECIMALS_USED",
	symIdxNumTotalReferences:   "NUM_TOTAL_REFERENCES",
	symIdxNumReferencesUsed:    "NUM_REFERENCES_USED",
	symIdxNumTotalArrays:       "NUM_TOTAL_ARRAYS",
	symIdxNumArraysUsed:        "NUM_ARRAYS_USED",
}

// opcodeSymbol returns the reserved symbol atom for a compiler-emitted
// opcode mnemonic.
func opcodeSymbol(idx int) Atom { return symbolAtom(idx) }

// readOnlyStatusKeys are the parameter-bag keys that SetValue must
// reject (spec §6.1: "Read-only keys fail with \"read only\"").
var readOnlyStatusKeys = map[int]bool{
	symIdxOpCount:              true,
	symIdxGCCount:              true,
	symIdxGCEfficiency:         true,
	symIdxNumGCRoots:           true,
	symIdxNumSymbols:           true,
	symIdxNumGlobals:           true,
	symIdxNumTotalCells:        true,
	symIdxNumCellsUsed:         true,
	symIdxNumTotalStrings:      true,
	symIdxNumStringsUsed:       true,
	symIdxNumTotalLargeNumbers: true,
	symIdxNumLargeNumbersUsed:  true,
	symIdxNumTotalDecimals:     true,
	symIdxNumDecimalsUsed:      true,
	symIdxNumTotalReferences:   true,
	symIdxNumReferencesUsed:    true,
	symIdxNumTotalArrays:       true,
	symIdxNumArraysUsed:        true,
}
