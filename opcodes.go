package pimii

// Opcode is an Atom that happens to be one of the reserved opcode
// symbols. Code lists hold a mix of Opcode and operand atoms; the VM
// distinguishes them purely by position (every opcode knows how many
// operands follow it in the code stream), never by tag.
type Opcode = Atom

var (
	opNIL      = opcodeSymbol(symIdxOpNIL)
	opLDC      = opcodeSymbol(symIdxOpLDC)
	opLD       = opcodeSymbol(symIdxOpLD)
	opST       = opcodeSymbol(symIdxOpST)
	opLDG      = opcodeSymbol(symIdxOpLDG)
	opSTG      = opcodeSymbol(symIdxOpSTG)
	opLDF      = opcodeSymbol(symIdxOpLDF)
	opAP       = opcodeSymbol(symIdxOpAP)
	opAP0      = opcodeSymbol(symIdxOpAP0)
	opRTN      = opcodeSymbol(symIdxOpRTN)
	opLongRTN  = opcodeSymbol(symIdxOpLongRTN)
	opBT       = opcodeSymbol(symIdxOpBT)
	opJOIN     = opcodeSymbol(symIdxOpJOIN)
	opCAR      = opcodeSymbol(symIdxOpCAR)
	opCDR      = opcodeSymbol(symIdxOpCDR)
	opCONS     = opcodeSymbol(symIdxOpCONS)
	opRPLCAR   = opcodeSymbol(symIdxOpRPLCAR)
	opRPLCDR   = opcodeSymbol(symIdxOpRPLCDR)
	opCHAIN    = opcodeSymbol(symIdxOpCHAIN)
	opCHAINEND = opcodeSymbol(symIdxOpCHAINEND)
	opSPLIT    = opcodeSymbol(symIdxOpSPLIT)
	opEQ       = opcodeSymbol(symIdxOpEQ)
	opNE       = opcodeSymbol(symIdxOpNE)
	opLT       = opcodeSymbol(symIdxOpLT)
	opLTQ      = opcodeSymbol(symIdxOpLTQ)
	opGT       = opcodeSymbol(symIdxOpGT)
	opGTQ      = opcodeSymbol(symIdxOpGTQ)
	opADD      = opcodeSymbol(symIdxOpADD)
	opSUB      = opcodeSymbol(symIdxOpSUB)
	opMUL      = opcodeSymbol(symIdxOpMUL)
	opDIV      = opcodeSymbol(symIdxOpDIV)
	opREM      = opcodeSymbol(symIdxOpREM)
	opAND      = opcodeSymbol(symIdxOpAND)
	opOR       = opcodeSymbol(symIdxOpOR)
	opNOT      = opcodeSymbol(symIdxOpNOT)
	opFILE     = opcodeSymbol(symIdxOpFILE)
	opLINE     = opcodeSymbol(symIdxOpLINE)
	opSTOP     = opcodeSymbol(symIdxOpSTOP)
)
