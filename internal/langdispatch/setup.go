package langdispatch

import (
	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/standardbeagle/semindex/internal/types"
)

// buildFunc constructs a parser plus its block-capture query for one
// grammar. Capture names follow "<blockType>.name" (the node the block's
// Name field is read from) and a bare "<blockType>" wrapper on the
// enclosing node, matching the capture convention the teacher's own
// per-language queries use.
type buildFunc func() (*tree_sitter.Parser, *tree_sitter.Query, error)

var setupFuncs = map[types.Language]buildFunc{
	types.LangGo:         setupGo,
	types.LangPython:     setupPython,
	types.LangJavaScript: setupJavaScript,
	types.LangTypeScript: setupTypeScript,
	types.LangJava:       setupJava,
	types.LangRust:       setupRust,
	types.LangPHP:        setupPHP,
	types.LangCSharp:     setupCSharp,
	types.LangCPP:        setupCpp,
	types.LangZig:        setupZig,
}

func build(lang *tree_sitter.Language, queryStr string) (*tree_sitter.Parser, *tree_sitter.Query, error) {
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		return nil, nil, err
	}
	query, err := tree_sitter.NewQuery(lang, queryStr)
	if query == nil {
		return parser, nil, err
	}
	return parser, query, nil
}

func setupGo() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_go.Language())
	return build(lang, `
        (function_declaration name: (identifier) @function.name) @function
        (method_declaration
            receiver: (parameter_list)
            name: (field_identifier) @method.name) @method
        (type_declaration
            (type_spec name: (type_identifier) @type.name
                type: (struct_type))) @class
        (type_declaration
            (type_spec name: (type_identifier) @interface.name
                type: (interface_type))) @interface
        (func_literal) @function
        (import_spec path: (interpreted_string_literal) @import.path) @import
    `)
}

func setupPython() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_python.Language())
	return build(lang, `
        (class_definition
            body: (block
                (function_definition name: (identifier) @method.name) @method))
        (class_definition
            body: (block
                (expression_statement
                    (assignment left: (identifier) @variable.name) @variable)))
        (function_definition name: (identifier) @function.name) @function
        (class_definition name: (identifier) @class.name) @class
        (import_statement) @import
        (import_from_statement) @import
    `)
}

func setupJavaScript() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	return build(lang, `
        (function_declaration name: (identifier) @function.name) @function
        (generator_function_declaration name: (identifier) @function.name) @function
        (variable_declarator
            name: (identifier) @function.name
            value: [(arrow_function) (function_expression) (generator_function)]) @function
        (variable_declarator
            name: (identifier) @variable.name
            value: (_) @variable.value) @variable
        (method_definition name: (property_identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (export_statement declaration: (_) @export.name) @export
        (import_statement source: (string) @import.source) @import
    `)
}

func setupTypeScript() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	return build(lang, `
        (function_declaration name: (identifier) @function.name) @function
        (generator_function_declaration name: (identifier) @function.name) @function
        (method_definition name: (property_identifier) @method.name) @method
        (function_expression name: (identifier) @function.name) @function
        (variable_declarator
            name: (identifier) @function.name
            value: [(arrow_function) (function_expression) (generator_function)]) @function
        (class_declaration name: (type_identifier) @class.name) @class
        (interface_declaration name: (type_identifier) @interface.name) @interface
        (enum_declaration name: (identifier) @enum.name) @enum
        (export_statement declaration: (_) @export.name) @export
        (import_statement source: (string) @import.source) @import
    `)
}

func setupJava() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_java.Language())
	return build(lang, `
        (method_declaration name: (identifier) @method.name) @method
        (constructor_declaration name: (identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (record_declaration name: (identifier) @class.name) @class
        (interface_declaration name: (identifier) @interface.name) @interface
        (enum_declaration name: (identifier) @enum.name) @enum
        (import_declaration) @import
    `)
}

func setupRust() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_rust.Language())
	return build(lang, `
        (impl_item
            body: (declaration_list
                (function_item name: (identifier) @method.name) @method))
        (trait_item
            body: (declaration_list
                (function_item name: (identifier) @method.name) @method))
        (function_item name: (identifier) @function.name) @function
        (struct_item name: (type_identifier) @class.name) @class
        (enum_item name: (type_identifier) @enum.name) @enum
        (trait_item name: (type_identifier) @interface.name) @interface
        (use_declaration) @import
    `)
}

func setupPHP() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP())
	return build(lang, `
        (class_declaration name: (name) @class.name) @class
        (interface_declaration name: (name) @interface.name) @interface
        (trait_declaration name: (name) @class.name) @class
        (enum_declaration name: (name) @enum.name) @enum
        (function_definition name: (name) @function.name) @function
        (method_declaration name: (name) @method.name) @method
        (namespace_use_declaration) @import
    `)
}

func setupCSharp() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_csharp.Language())
	return build(lang, `
        (method_declaration name: (identifier) @method.name) @method
        (constructor_declaration name: (identifier) @method.name) @method
        (class_declaration name: (identifier) @class.name) @class
        (interface_declaration name: (identifier) @interface.name) @interface
        (struct_declaration name: (identifier) @class.name) @class
        (record_declaration name: (identifier) @class.name) @class
        (enum_declaration name: (identifier) @enum.name) @enum
        (using_directive (qualified_name) @import.name) @import
        (using_directive (identifier) @import.name) @import
    `)
}

func setupCpp() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	return build(lang, `
        (function_definition declarator: (function_declarator declarator: (identifier) @function.name)) @function
        (class_specifier name: (type_identifier) @class.name) @class
        (struct_specifier name: (type_identifier) @class.name) @class
        (enum_specifier name: (type_identifier) @enum.name) @enum
        (preproc_include) @import
        (using_declaration) @import
    `)
}

func setupZig() (*tree_sitter.Parser, *tree_sitter.Query, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_zig.Language())
	return build(lang, `
        (function_declaration (identifier) @function.name) @function
        (variable_declaration
          (identifier) @class.name
          (struct_declaration) @class)
        (variable_declaration
          (identifier) @class.name
          (union_declaration) @class)
    `)
}
