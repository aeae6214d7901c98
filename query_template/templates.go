package query_template

// Statement text sent to the store. Operational tooling matches on these, so
// keep them byte-stable.
//
// Positional templates take identifiers already escaped with IdentBody inside
// their double quotes. Named templates take fully rendered fragments.

const (
	SchemaKey               = "schema"
	TableKey                = "table"
	RegclassKey             = "regclass"
	ColumnsKey              = "columns"
	TemplateRowsKey         = "templateRows"
	SourceColumnsKey        = "sourceColumns"
	UniquenessConstraintKey = "uniquenessConstraint"
	UpdateStatementKey      = "updateStatement"
	IndexKey                = "index"
	SecondaryIndexKey       = "secondaryIndex"
)

// ExistingSchema takes $1 = schema and $2 = table.
const ExistingSchema = `SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position ASC`

const CreateSchema = `CREATE SCHEMA IF NOT EXISTS "?";`

const CreateTable = `DO $$
BEGIN
    IF to_regclass('?regclass') IS NULL THEN
        CREATE TABLE "?schema"."?table"
        (
            ?columns
        );
        ?index
        ?secondaryIndex
    END IF;
END
$$;`

const CreateIndex = `CREATE INDEX "?" ON "?"."?" (?);`

const DropTable = `DROP TABLE "?"."?";`

const AlterTableAdd = `ALTER TABLE "?"."?" ADD COLUMN "?" ? NULL;`

const AlterTableDrop = `ALTER TABLE "?"."?" DROP COLUMN "?";`

const AlterTableModify = `ALTER TABLE "?"."?" ALTER COLUMN "?" TYPE ? USING "?"::?, ALTER COLUMN "?" DROP NOT NULL;`

const InsertInto = `INSERT INTO "?schema"."?table" (?columns)
SELECT table_value.*
FROM (VALUES ?templateRows) AS table_value (?columns)`

const MergeInto = `MERGE INTO "?schema"."?table" AS Target
USING (VALUES ?templateRows) AS Source (?columns)
ON ?uniquenessConstraint
WHEN MATCHED THEN
    UPDATE SET ?updateStatement
WHEN NOT MATCHED THEN
    INSERT (?columns) VALUES (?sourceColumns)`

const DeleteWhereColumnNotNull = `DELETE FROM "?"."?" WHERE "?" IS NOT NULL`

const DeleteWhereColumnLessThan = `DELETE FROM "?"."?" WHERE "?" < ?`

const SelectAll = `SELECT * FROM "?"."?"`

const CountAll = `SELECT COUNT(*) FROM "?"."?"`
