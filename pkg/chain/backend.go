// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chain implements an in-process, automining ledger that hosts the
// raffle and vrf contracts. Every transaction is executed serially and
// atomically: either all of its balance transfers, contract state mutations
// and logs are committed, or none of them are. Each transaction mines a new
// block, the same way a development node does.
package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethersphere/raffle/pkg/logging"
)

// DevChainID is the chain id used by development networks.
const DevChainID = 31337

var (
	// ErrInsufficientFunds is returned when an account does not hold enough
	// value for a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds for transfer")
	// ErrNegativeValue is returned when a transaction or a transfer carries
	// a negative amount.
	ErrNegativeValue = errors.New("negative value")
	// ErrTransferRejected is returned when the recipient of a transfer
	// refuses to accept value.
	ErrTransferRejected = errors.New("transfer rejected by recipient")
	// ErrWriteProtection is returned when a read-only call tries to mutate state.
	ErrWriteProtection = errors.New("write protection")
	// ErrUnknownTransaction is returned for receipts of transactions that were never mined.
	ErrUnknownTransaction = errors.New("unknown transaction")
	// ErrContractExists is returned when a deployment collides with an existing contract.
	ErrContractExists = errors.New("contract already exists")
)

// Msg describes a transaction sent to the backend.
type Msg struct {
	From        common.Address // sender of the transaction
	To          common.Address // recipient contract or account
	Value       *big.Int       // amount of wei to send, nil for none
	Description string         // optional description, used for logging
}

// ReceiveFunc is invoked when value is transferred to an account that has
// one registered. Returning an error rejects the transfer.
type ReceiveFunc func(from common.Address, amount *big.Int) error

// Header is the minimal block header kept by the backend.
type Header struct {
	Number uint64
	Time   uint64
	Hash   common.Hash
}

// Backend is the in-process chain.
type Backend struct {
	mu sync.Mutex

	logger  logging.Logger
	metrics metrics
	chainID *big.Int
	clock   func() time.Time
	offset  time.Duration

	head      Header
	headers   []Header
	balances  map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	receivers map[common.Address]ReceiveFunc
	contracts map[common.Address]interface{}
	receipts  map[common.Hash]*types.Receipt
	logs      []types.Log

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}

	// commitSeq is handed out under mu, committed is the next sequence
	// whose commit hooks may run.
	commitSeq  uint64
	commitMu   sync.Mutex
	commitCond *sync.Cond
	committed  uint64
}

// Option configures the Backend.
type Option func(*Backend)

// WithClock sets the source of wall clock time. Block timestamps never go
// below the clock value plus the accumulated time offset.
func WithClock(clock func() time.Time) Option {
	return func(b *Backend) { b.clock = clock }
}

// WithChainID sets the chain id reported by the backend.
func WithChainID(id int64) Option {
	return func(b *Backend) { b.chainID = big.NewInt(id) }
}

// WithAlloc credits the given accounts in the genesis block.
func WithAlloc(alloc map[common.Address]*big.Int) Option {
	return func(b *Backend) {
		for addr, balance := range alloc {
			b.balances[addr] = new(big.Int).Set(balance)
		}
	}
}

// WithLogger sets the logger used by the backend.
func WithLogger(logger logging.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// New creates a backend with a genesis block at the current clock time.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:    logging.Noop,
		metrics:   newMetrics(),
		chainID:   big.NewInt(DevChainID),
		clock:     time.Now,
		balances:  make(map[common.Address]*big.Int),
		nonces:    make(map[common.Address]uint64),
		receivers: make(map[common.Address]ReceiveFunc),
		contracts: make(map[common.Address]interface{}),
		receipts:  make(map[common.Hash]*types.Receipt),
		subs:      make(map[*Subscription]struct{}),
	}
	b.commitCond = sync.NewCond(&b.commitMu)
	for _, o := range opts {
		o(b)
	}

	genesis := Header{Number: 0, Time: uint64(b.clock().Unix())}
	genesis.Hash = headerHash(genesis)
	b.head = genesis
	b.headers = append(b.headers, genesis)

	return b
}

// ChainID returns the chain id of the backend.
func (b *Backend) ChainID() *big.Int {
	return new(big.Int).Set(b.chainID)
}

// BlockNumber returns the number of the latest block.
func (b *Backend) BlockNumber(_ context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.head.Number, nil
}

// HeaderByNumber returns the header of the block with the given number,
// or the latest header if number is nil.
func (b *Backend) HeaderByNumber(_ context.Context, number *big.Int) (Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if number == nil {
		return b.head, nil
	}
	if !number.IsUint64() || number.Uint64() > b.head.Number {
		return Header{}, fmt.Errorf("block %s not found", number)
	}
	return b.headers[number.Uint64()], nil
}

// BalanceAt returns the balance of the account at the latest block.
func (b *Backend) BalanceAt(_ context.Context, address common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.balanceOf(address), nil
}

// SetBalance overwrites the balance of an account.
func (b *Backend) SetBalance(address common.Address, balance *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.balances[address] = new(big.Int).Set(balance)
}

// SetReceiver registers a hook deciding whether the account accepts value
// transfers. A nil hook removes a previously registered one.
func (b *Backend) SetReceiver(address common.Address, fn ReceiveFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fn == nil {
		delete(b.receivers, address)
		return
	}
	b.receivers[address] = fn
}

// ContractAt returns the contract deployed at the given address.
func (b *Backend) ContractAt(address common.Address) (interface{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.contracts[address]
	return c, ok
}

// IncreaseTime moves the clock of the next blocks forward by d.
func (b *Backend) IncreaseTime(d time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.offset += d
	b.logger.Debugf("chain: time increased by %s, total offset %s", d, b.offset)
	return b.offset
}

// Mine mines an empty block and returns its header.
func (b *Backend) Mine() Header {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := b.nextHeader()
	b.appendHeader(h)
	return h
}

// Transact executes fn as a transaction from msg.From to msg.To. The value
// is moved to the recipient before fn runs. If fn returns an error, every
// effect of the transaction is reverted, a failed receipt is stored and the
// error is returned together with the receipt.
func (b *Backend) Transact(ctx context.Context, msg Msg, fn func(f *Frame) error) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	header := b.nextHeader()
	txHash := b.txHash(msg)

	f := newFrame(b, header, msg.From, msg.To, msg.Value)
	err := f.moveValue()
	if err == nil && fn != nil {
		err = fn(f)
	}

	receipt := b.finalize(f, txHash, err)
	seq := b.nextCommit()
	b.mu.Unlock()

	b.afterCommit(seq, f, receipt, err)

	if err != nil {
		b.logger.Debugf("chain: transaction %s %q reverted: %v", txHash, msg.Description, err)
		return receipt, err
	}
	b.logger.Tracef("chain: transaction %s %q mined in block %d", txHash, msg.Description, header.Number)
	return receipt, nil
}

// Deploy executes constructor as a contract creation transaction. The
// returned contract object is registered at the new address.
func (b *Backend) Deploy(ctx context.Context, from common.Address, description string, constructor func(f *Frame) (interface{}, error)) (common.Address, *types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, nil, err
	}

	b.mu.Lock()
	address := crypto.CreateAddress(from, b.nonces[from])
	header := b.nextHeader()
	txHash := b.txHash(Msg{From: from, Description: description})

	f := newFrame(b, header, from, address, nil)
	var err error
	if _, exists := b.contracts[address]; exists {
		err = ErrContractExists
	}
	var contract interface{}
	if err == nil {
		contract, err = constructor(f)
	}
	if err == nil {
		b.contracts[address] = contract
		f.Journal(func() { delete(b.contracts, address) })
	}

	receipt := b.finalize(f, txHash, err)
	if err == nil {
		receipt.ContractAddress = address
	}
	seq := b.nextCommit()
	b.mu.Unlock()

	b.afterCommit(seq, f, receipt, err)

	if err != nil {
		return common.Address{}, receipt, fmt.Errorf("deploy %s: %w", description, err)
	}
	b.logger.Debugf("chain: deployed %s at %s in block %d", description, address, header.Number)
	return address, receipt, nil
}

// View runs fn against the state of the latest block. The frame passed to
// fn rejects every state mutation.
func (b *Backend) View(fn func(f *Frame) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := newFrame(b, b.head, common.Address{}, common.Address{}, nil)
	f.readOnly = true
	return fn(f)
}

// TransactionReceipt returns the receipt of a mined transaction.
func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ErrUnknownTransaction
	}
	return r, nil
}

// FilterLogs returns committed logs emitted by address whose first topic
// matches one of the given topics. No topics matches every log of address.
func (b *Backend) FilterLogs(address common.Address, topics ...common.Hash) []types.Log {
	b.mu.Lock()
	defer b.mu.Unlock()

	var logs []types.Log
	for _, l := range b.logs {
		if l.Address != address {
			continue
		}
		if len(topics) == 0 || (len(l.Topics) > 0 && containsHash(topics, l.Topics[0])) {
			logs = append(logs, l)
		}
	}
	return logs
}

// finalize mines the block of the transaction executed in f and builds its
// receipt, reverting f first when err is not nil. Must be called with the
// lock held.
func (b *Backend) finalize(f *Frame, txHash common.Hash, err error) *types.Receipt {
	header := f.header
	b.appendHeader(header)

	receipt := &types.Receipt{
		TxHash:      txHash,
		BlockHash:   header.Hash,
		BlockNumber: new(big.Int).SetUint64(header.Number),
	}

	b.metrics.Transactions.Inc()
	if err != nil {
		f.revert()
		b.metrics.RevertedTransactions.Inc()
		receipt.Status = types.ReceiptStatusFailed
		receipt.Logs = []*types.Log{}
		b.receipts[txHash] = receipt
		return receipt
	}

	receipt.Status = types.ReceiptStatusSuccessful
	for _, l := range f.logs {
		l.BlockNumber = header.Number
		l.BlockHash = header.Hash
		l.TxHash = txHash
		l.Index = uint(len(b.logs))
		receipt.Logs = append(receipt.Logs, l)
		b.logs = append(b.logs, *l)
	}
	b.metrics.Logs.Add(float64(len(f.logs)))
	b.receipts[txHash] = receipt
	return receipt
}

// nextCommit hands out the commit sequence of the block being mined. It
// must be called with the lock held.
func (b *Backend) nextCommit() uint64 {
	seq := b.commitSeq
	b.commitSeq++
	return seq
}

// afterCommit runs the commit hooks of a successful transaction and
// publishes its logs to the subscribers. Commits are processed strictly in
// block order. It is called without the lock so that hooks may read chain
// state, but hooks must not send transactions.
func (b *Backend) afterCommit(seq uint64, f *Frame, receipt *types.Receipt, err error) {
	b.commitMu.Lock()
	for b.committed != seq {
		b.commitCond.Wait()
	}
	b.commitMu.Unlock()

	defer func() {
		b.commitMu.Lock()
		b.committed++
		b.commitCond.Broadcast()
		b.commitMu.Unlock()
	}()

	if err != nil {
		return
	}
	for _, fn := range f.commits {
		fn()
	}
	if len(receipt.Logs) == 0 {
		return
	}

	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for s := range b.subs {
		s.push(receipt.Logs)
	}
}

// nextHeader returns the header of the block that would be mined next.
// Must be called with the lock held.
func (b *Backend) nextHeader() Header {
	ts := uint64(b.clock().Add(b.offset).Unix())
	if ts <= b.head.Time {
		ts = b.head.Time + 1
	}
	h := Header{
		Number: b.head.Number + 1,
		Time:   ts,
	}
	h.Hash = headerHash(h)
	return h
}

func (b *Backend) appendHeader(h Header) {
	b.head = h
	b.headers = append(b.headers, h)
	b.metrics.BlockNumber.Set(float64(h.Number))
}

// txHash derives a unique transaction hash and increments the sender nonce.
// Must be called with the lock held.
func (b *Backend) txHash(msg Msg) common.Hash {
	nonce := b.nonces[msg.From]
	b.nonces[msg.From] = nonce + 1

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return crypto.Keccak256Hash(msg.From.Bytes(), msg.To.Bytes(), n[:], b.chainID.Bytes())
}

func (b *Backend) balanceOf(address common.Address) *big.Int {
	if v, ok := b.balances[address]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func headerHash(h Header) common.Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], h.Number)
	binary.BigEndian.PutUint64(buf[8:], h.Time)
	return crypto.Keccak256Hash(buf[:])
}

func containsHash(hashes []common.Hash, h common.Hash) bool {
	for _, v := range hashes {
		if v == h {
			return true
		}
	}
	return false
}
