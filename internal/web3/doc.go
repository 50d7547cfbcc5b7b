// Package web3 houses the host side wallet implementations used by the
// daemon: chain definitions, the RPC backend abstraction and snapshots of
// network state. Plugins never import this package; they only see the
// capability interfaces in pkg/wallet.
package web3
