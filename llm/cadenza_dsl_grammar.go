package llm

// GetCadenzaDSLGrammar returns the Lark grammar for the CADENZA pipeline DSL.
// The DSL expresses action plans as functional pipelines over session
// collections: tracks.filter(volume < 0).for_each(mute)
// Each stage's output becomes the next stage's source, left to right.
func GetCadenzaDSLGrammar() string {
	return `
// CADENZA DSL Grammar - functional pipelines over DAW collections
// Syntax: collection.filter(pred).map(field).for_each(action)

start: statement+

statement: IDENTIFIER stage+

stage: "." op_call
op_call: filter_call | map_call | for_each_call

filter_call: "filter" "(" predicate ")"

map_call: "map" "(" field_path ")"

for_each_call: "for_each" "(" action_spec ")"

action_spec: IDENTIFIER action_params?
action_params: "(" (action_param ("," SP action_param)*)? ")"
action_param: IDENTIFIER "=" param_value
param_value: STRING | NUMBER | BOOLEAN | field_path

// Predicates: comparisons joined by and/or/not, parentheses allowed
predicate: or_expr
or_expr: and_expr (SP "or" SP and_expr)*
and_expr: unary_expr (SP "and" SP unary_expr)*
unary_expr: "not" SP primary
          | primary
primary: comparison
       | "(" or_expr ")"
       | field_path

comparison: operand SP? comparison_op SP? operand
          | operand SP "contains" SP operand
operand: field_path | STRING | NUMBER | BOOLEAN

field_path: IDENTIFIER ("." IDENTIFIER)*

comparison_op: "==" | "!=" | "<" | ">" | "<=" | ">="

SP: " "
STRING: /"[^"]*"/
NUMBER: /-?\d+(\.\d+)?/
BOOLEAN: "true" | "false"
IDENTIFIER: /[a-zA-Z_][a-zA-Z0-9_]*/
`
}
