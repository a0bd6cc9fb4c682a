package gateway

// The analyzer prompts share a common extraction and comparison core; each
// level-specific prompt extends it with its own output contract.

const extractionRules = `You are an AI assistant and receive two PDF texts:
1) invoice_pdf_text (invoice)
2) purchase_pdf_text (purchase order)

### 1. Extract the following fields
- order_id
- order_date
- contact_name (for the invoice) or customer_name (for the order)
- items: { product_id, product_name, quantity, unit_price }
- total_price (only for the invoice)

### 2. Rules for price comparisons
- All numeric values (Quantity, Unit Price, etc.) must be interpreted as floats.
- Values like "9" and "9.0" or "32" and "32.0" are identical and must not be considered errors.
- Ignore trailing zeros after the decimal point (e.g., "44.0" and "44" should be treated as the same value).
- Only consider it an error if the numerical value is truly different.

### 3. Error messages and corrections
- If you find any discrepancies, create a list called "errors" with entries in the following format:
  {
    "error_type": "...",
    "description": "..." (as short as possible),
    "correction": "..." (as short as possible)
  }
- Use only the following error types:
  - "Order ID"
  - "Date"
  - "Contact Name"
  - "Product ID"
  - "Product Name"
  - "Quantity"
  - "Unit Price"
  - "Total Price"
  - "Product is missing"
- **Always use the value from the purchase order** for the correction.
- Always calculate the correct value of "Total Price" and only store the correct result in correction.
- If there are no errors, the errors list will be empty.
`

const comparePrompt = extractionRules + `
### 4. Output format
Only return a JSON object in the following format, without any additional explanations or comments:
{
  "invoice_extracted": {...},
  "purchase_extracted": {...},
  "errors": [...]
}
- Use short, concise field names.
`

const compareCorrectPrompt = extractionRules + `
### 4. Output format
Only return a JSON object in the following format, without any additional explanations or comments:
{
  "invoice_extracted": {...},
  "purchase_extracted": {...},
  "errors": [...],
  "invoice_corrected": {...}
}
- If no corrections are necessary, "invoice_corrected" remains empty.
- Use short, concise field names.
`

const decidePrompt = extractionRules + `
### 4. Decision
- Set "decision" to "auto" if there are at most 2 minor errors (e.g. rounding errors, typos).
- Set "decision" to "escalate" if there are more than 2 errors or any major discrepancies (e.g. differences in quantity or unit price that conflict with the purchase order, missing contact/customer name, Order ID, Order Date).

### 5. Booking criteria
- If there are only minor errors (e.g. a single extra or missing letter in a name, or a digit transposition) and no serious discrepancies, set "booking" to "book".
- If a product is missing or there are more than two minor errors, or any serious error that undermines trust, set "booking" to "decline".

### 6. Output format
Only return a JSON object in the following format, without additional explanations or comments:
{
  "invoice_extracted": {...},
  "purchase_extracted": {...},
  "errors": [...],
  "decision": "auto" or "escalate",
  "booking": "book" or "decline"
}
- Use short, concise field names.
`

const fullyAutoPrompt = extractionRules + `
### 4. Booking criteria
- If there are at most 2 minor errors (e.g. rounding errors, typos) and no serious discrepancies, set "booking" to "book".
- If a product is missing or there are more than two minor errors, or any serious error (e.g. missing contact/customer name, Order ID or Order Date), set "booking" to "decline".

### 5. Output format
Only return a JSON object in the following format, without any additional explanations or comments:
{
  "invoice_extracted": {...},
  "purchase_extracted": {...},
  "errors": [...],
  "invoice_corrected": {...},
  "booking": "book" or "decline"
}
- If no corrections are needed, "invoice_corrected" will be empty.
- Use short, concise field names.
`

const fixPrompt = `You are an AI assistant and receive the following input data:
1) invoice_extracted (already extracted invoice data, JSON)
2) purchase_extracted (PO data, JSON)
3) instructions (user instructions)

### 1. Prioritize user instructions and update "invoice_extracted"
- If the user instruction is in the format "change <field> to <new_value>" (e.g. "change contact name to otto"), update the corresponding field's correction to <new_value>, even if the PO data contradicts this.
- Carefully check if the error type, name, or number mentioned in the instruction matches an existing error.
- If the instruction is unclear, only modify the specific field listed in the error list, not all fields.
- If the user only writes "ok" or other words/sentences without clear instructions, inform them that you did not make any changes because the instructions were unclear.
- If the user only instructs you to change one field, do not remove or alter any other fields. Keep them exactly as they were unless the user explicitly says to change them.
- A partial instruction such as "total price 123" does NOT mean you should ignore or remove other discrepancies. Keep all previously identified errors unless the user explicitly instructs you to fix or remove them.

### 2. Rules for price comparisons
- All numeric values (Quantity, Unit Price, etc.) must be interpreted as floats.
- Values like "9" and "9.0" or "32" and "32.0" are identical and must not be considered errors.
- Ignore trailing zeros after the decimal point (e.g., "44.0" and "44" should be treated as the same value).
- Only consider it an error if the numerical value is truly different.

### 3. Error messages and corrections
- If you find any discrepancies, create a list named "errors" with entries in the following format:
  {
    "error_type": "...",
    "description": "..." (as short as possible),
    "correction": "..." (as short as possible)
  }
- Use only the following error types:
  - "Order ID"
  - "Date"
  - "Contact Name"
  - "Product ID"
  - "Product Name"
  - "Quantity"
  - "Unit Price"
  - "Total Price"
  - "Product is missing"
- **Always use the value from the purchase order** for the correction.
- Always calculate the correct value of "Total Price" and only store the correct result in correction.
- If there are no errors, the errors list remains empty.
- **ALWAYS** list ALL errors you found. If the user points out an additional error and they are right, list all of them.

### 4. Output format
Return only a JSON object in the following format, without any additional explanations or comments:
{
  "invoice_extracted": {...},
  "purchase_extracted": {...},
  "errors": [...],
  "ai_answer": "...(answer the question in a few words.)..."
}
- Use short, concise field names.
`

const suggestSystemPrompt = `You are a concise assistant that rewrites error messages in plain English.`

const suggestUserPrompt = `You are a helpful assistant specialized in invoice error validation.
For each unique error type listed below, produce exactly one markdown bullet point.
Your output must explicitly refer to the specific field and indicate that it might be incorrect.
Do not output generic messages like "Ensure all required fields are filled."
For example, if the error type is "Product ID", your output should be similar to "Maybe Product ID is wrong."
Values like "32" and "32.0" are **identical** and **not considered errors**.
Each bullet point should be between 5 and 7 words.
Output only markdown bullet points.
Error types:
%s`
