package backend

const rustQuery = `
(macro_invocation
  macro: [
    (identifier) @context.macro
    (scoped_identifier name: (identifier) @context.macro)
  ]
  (token_tree) @context.tree)

(call_expression
  function: [
    (identifier) @call.name
    (field_expression field: (field_identifier) @call.name)
    (scoped_identifier name: (identifier) @call.name)
  ]
  arguments: (arguments) @call.args)

(call_expression
  function: (field_expression
    value: (identifier) @register.object
    field: (field_identifier) @register.method)
  arguments: (arguments) @register.args)
`

const pythonQuery = `
(call
  function: [
    (identifier) @call.name
    (attribute attribute: (identifier) @call.name)
  ]
  arguments: (argument_list) @call.args)

(call
  function: (attribute
    object: (identifier) @register.object
    attribute: (identifier) @register.method)
  arguments: (argument_list) @register.args)

(assignment
  left: (identifier) @context.name
  right: (dictionary) @context.dict)
`
