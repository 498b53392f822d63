// Package lazarr lowers directed acyclic graphs of lazy array expressions
// into executable kernels.
//
// The input is a DAG of array-valued nodes -- pointwise maps, reductions,
// reshapes, fusions and materialized immediates -- built with the dag
// package. The kernelize package decides which nodes get materialized,
// partitions the work of each materialized node into rectangular kernels,
// and emits for every kernel a hash-consed blueprint term (see the terms
// package) that a backend can use both as a code-generation cache key and
// as a walkable description of the loop nest.
//
// Lazarr itself never executes kernels, allocates result storage or does
// numeric work: it produces a value that tells a backend how to do so.
package lazarr
