// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package version

import (
	"fmt"
	"strings"
)

// Op is a comparison operator used in guard constraints.
type Op string

// Supported constraint operators.
const (
	OpEQ Op = "=="
	OpNE Op = "!="
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
)

var ops = []Op{OpEQ, OpNE, OpGE, OpLE, OpGT, OpLT}

// ParseOp validates an operator string.
func ParseOp(s string) (Op, error) {
	for _, op := range ops {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOp, s)
}

// Inverse returns the operator whose result is always the opposite of op.
func (op Op) Inverse() Op {
	switch op {
	case OpEQ:
		return OpNE
	case OpNE:
		return OpEQ
	case OpGT:
		return OpLE
	case OpGE:
		return OpLT
	case OpLT:
		return OpGE
	case OpLE:
		return OpGT
	}
	return op
}

// Constraint compares a context version against a fixed value.
type Constraint struct {
	Op    Op     `json:"op" yaml:"op"`
	Value string `json:"value" yaml:"value"`
}

// ParseConstraint parses "OP VALUE", e.g. ">= 1500".
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	for _, op := range ops {
		if rest, ok := strings.CutPrefix(s, string(op)); ok {
			v := strings.TrimSpace(rest)
			if v == "" {
				return Constraint{}, ErrEmptyVersion
			}
			return Constraint{Op: op, Value: v}, nil
		}
	}
	return Constraint{}, fmt.Errorf("%w: %q", ErrInvalidOp, s)
}

// String renders the constraint as written in a guard.
func (c Constraint) String() string {
	return fmt.Sprintf("%s %s", c.Op, c.Value)
}

// Matches reports whether v satisfies the constraint. An empty v compares
// as "0", the value an undefined RPM macro takes in "0%{?x}".
func (c Constraint) Matches(v string) bool {
	if v == "" {
		v = "0"
	}
	cmp := Compare(v, c.Value)
	switch c.Op {
	case OpEQ:
		return cmp == 0
	case OpNE:
		return cmp != 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	default:
		return false
	}
}

// Boundaries returns versions just below, at and above the constraint value,
// enough to exercise both outcomes of any operator.
func (c Constraint) Boundaries() []string {
	return []string{c.Value + "~", c.Value, c.Value + "^"}
}
